package v1

import (
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"hello", Envelope{V: Version, Type: TypeHello}, true},
		{"send", Envelope{V: Version, Type: TypeChatSend, TS: now}, true},
		{"sign out", Envelope{V: Version, Type: TypeAuthSignOut}, true},
		{"missing version", Envelope{Type: TypeHello}, false},
		{"wrong version", Envelope{V: "v2", Type: TypeHello}, false},
		{"missing type", Envelope{V: Version}, false},
		{"server type from client", Envelope{V: Version, Type: TypeChatReset}, false},
		{"unknown", Envelope{V: Version, Type: "message.new"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestNewAndDecode(t *testing.T) {
	env, err := New(TypeChatSend, "id-1", time.Now().UTC(), ChatSendPayload{Text: "What is Anaplan?"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var p ChatSendPayload
	if err := env.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Text != "What is Anaplan?" {
		t.Fatalf("text = %q", p.Text)
	}

	empty, err := New(TypeConversationList, "id-2", time.Now().UTC(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if string(empty.Payload) != "{}" {
		t.Fatalf("payload = %s", empty.Payload)
	}
	if err := (Envelope{}).Decode(&p); err != nil {
		t.Fatalf("Decode empty: %v", err)
	}
}
