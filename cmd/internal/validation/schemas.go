package validation

import "strings"

const (
	MaxMessageLen = 2000
	MaxNameLen    = 100
	MaxEmailLen   = 255

	DefaultCountry = "United Kingdom"
)

var (
	DemoRoles = []string{
		"CEO", "CFO", "Finance Director", "Head of FP&A",
		"Data Leader", "Investor", "Consultant", "Other",
	}
	CompanySizes  = []string{"1-10", "11-50", "51-200", "201-1000", "1000+"}
	InterestAreas = []string{
		"AI-Powered Data Quality",
		"Automated Reconciliation",
		"Real-time Governance",
		"OneStream Integration",
		"Investment Opportunity",
		"Partnership Opportunity",
	}
)

// ChatInput is one question typed into the chat composer or widget.
type ChatInput struct {
	Message string `json:"message" validate:"required,max=2000"`
}

var chatMessages = messages{
	"message.required": "Message cannot be empty",
	"message.max":      "Message must be less than 2000 characters",
}

// Chat trims msg and checks it. The returned string is what gets sent and stored.
func Chat(msg string) (string, error) {
	in := ChatInput{Message: strings.TrimSpace(msg)}
	if err := check(in, chatMessages); err != nil {
		return "", err
	}
	return in.Message, nil
}

// Credentials is the login and signup form.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=256"`
}

var credentialMessages = messages{
	"email.required":    "Email is required",
	"email.email":       "Invalid email address",
	"email.max":         "Email must be less than 255 characters",
	"password.required": "Password is required",
	"password.min":      "Password must be at least 6 characters",
	"password.max":      "Password must be less than 256 characters",
}

// Login trims the email; the password is taken verbatim.
func Login(in Credentials) (Credentials, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := check(in, credentialMessages); err != nil {
		return Credentials{}, err
	}
	return in, nil
}

// ContactForm is the landing-page enquiry form.
type ContactForm struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Company string `json:"company" validate:"omitempty,max=100"`
	Message string `json:"message" validate:"required,max=2000"`
}

var contactMessages = messages{
	"name.required":    "Name is required",
	"name.max":         "Name must be less than 100 characters",
	"email.required":   "Email is required",
	"email.email":      "Invalid email address",
	"email.max":        "Email must be less than 255 characters",
	"company.max":      "Company must be less than 100 characters",
	"message.required": "Message is required",
	"message.max":      "Message must be less than 2000 characters",
}

func Contact(in ContactForm) (ContactForm, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Company = strings.TrimSpace(in.Company)
	in.Message = strings.TrimSpace(in.Message)
	if err := check(in, contactMessages); err != nil {
		return ContactForm{}, err
	}
	return in, nil
}

// DemoRequest is the "access your demo" form.
type DemoRequest struct {
	FullName        string   `json:"full_name" validate:"required,max=100"`
	CompanyName     string   `json:"company_name" validate:"required,max=100"`
	Email           string   `json:"email" validate:"required,email,max=255"`
	Role            string   `json:"role" validate:"required,demo_role"`
	CompanySize     string   `json:"company_size" validate:"omitempty,company_size"`
	Phone           string   `json:"phone" validate:"omitempty,max=40"`
	Country         string   `json:"country" validate:"required,max=100"`
	InterestedAreas []string `json:"interested_areas" validate:"max=10,dive,interest_area"`
}

var demoMessages = messages{
	"full_name.required":             "Full name is required",
	"full_name.max":                  "Full name must be less than 100 characters",
	"company_name.required":          "Company name is required",
	"company_name.max":               "Company name must be less than 100 characters",
	"email.required":                 "Email is required",
	"email.email":                    "Invalid email address",
	"email.max":                      "Email must be less than 255 characters",
	"role.required":                  "Please select your role",
	"role.demo_role":                 "Please select a valid role",
	"company_size.company_size":      "Please select a valid company size",
	"phone.max":                      "Phone must be less than 40 characters",
	"country.max":                    "Country must be less than 100 characters",
	"interested_areas.max":           "Select at most 10 areas of interest",
	"interested_areas.interest_area": "Unknown area of interest",
}

// Demo trims text fields, defaults the country and drops duplicate interest areas
// before checking.
func Demo(in DemoRequest) (DemoRequest, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	in.CompanySize = strings.TrimSpace(in.CompanySize)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Country = strings.TrimSpace(in.Country)
	if in.Country == "" {
		in.Country = DefaultCountry
	}
	in.InterestedAreas = dedupe(in.InterestedAreas)

	if err := check(in, demoMessages); err != nil {
		return DemoRequest{}, err
	}
	return in, nil
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
