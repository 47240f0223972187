package leads

import (
	"context"
	"sync"
)

// MemoryStore keeps leads in process for development runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	demos    []DemoLead
	contacts []ContactMessage
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) CreateDemoRequest(_ context.Context, lead DemoLead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demos = append(s.demos, lead)
	return nil
}

func (s *MemoryStore) CreateContactMessage(_ context.Context, msg ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, msg)
	return nil
}

func (s *MemoryStore) DemoRequests() []DemoLead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DemoLead(nil), s.demos...)
}

func (s *MemoryStore) ContactMessages() []ContactMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ContactMessage(nil), s.contacts...)
}
