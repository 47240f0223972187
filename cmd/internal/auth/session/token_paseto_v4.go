package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// AccessClaims is the identity carried by an access token.
type AccessClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(userID, sessionID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

const (
	claimUser    = "uid"
	claimSession = "sid"
)

// v4PublicTokens signs v4.public tokens. The footer carries the key id so a
// rotated key can be told apart in logs.
type v4PublicTokens struct {
	issuer   string
	audience string
	ttl      time.Duration
	skew     time.Duration
	footer   []byte

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager signs with the Ed25519 key in cfg. Verify enforces
// issuer, audience, expiry and not-before (with cfg.ClockSkew tolerance).
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	public := secret.Public()
	kid := public.ExportHex()
	if len(kid) > 16 {
		kid = kid[:16]
	}
	return &v4PublicTokens{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL,
		skew:     cfg.ClockSkew,
		footer:   []byte(`{"kid":"` + kid + `"}`),
		secret:   secret,
		public:   public,
	}, nil
}

func (m *v4PublicTokens) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	if m.audience != "" {
		tok.SetAudience(m.audience)
	}
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetFooter(m.footer)
	if err := tok.Set(claimUser, userID); err != nil {
		return "", time.Time{}, err
	}
	if err := tok.Set(claimSession, sessionID); err != nil {
		return "", time.Time{}, err
	}
	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *v4PublicTokens) Verify(raw string, now time.Time) (AccessClaims, error) {
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	if m.audience != "" {
		p.AddRule(paseto.ForAudience(m.audience))
	}
	p.AddRule(paseto.ValidAt(now.Add(m.skew)))

	tok, err := p.ParseV4Public(m.public, raw, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	exp, err := tok.GetExpiration()
	if err != nil || !exp.After(now) {
		return AccessClaims{}, ErrInvalidToken
	}
	claims := AccessClaims{ExpiresAt: exp}
	if claims.UserID, err = tok.GetString(claimUser); err != nil || claims.UserID == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.SessionID, err = tok.GetString(claimSession); err != nil || claims.SessionID == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	claims.IssuedAt, _ = tok.GetIssuedAt()
	return claims, nil
}
