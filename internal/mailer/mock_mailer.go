package mailer

import (
	"sync"
)

// MockMailer records outgoing mail instead of sending it. Send is called
// from background goroutines, so all access to the record is guarded.
type MockMailer struct {
	mu   sync.RWMutex
	sent []MockMail
}

type MockMail struct {
	Recipient    string
	TemplateFile string
	Data         any
}

func (m *MockMailer) Send(recipient, templateFile string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, MockMail{
		Recipient:    recipient,
		TemplateFile: templateFile,
		Data:         data,
	})

	return nil
}

// SentMails returns a copy of everything recorded so far.
func (m *MockMailer) SentMails() []MockMail {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sent := make([]MockMail, len(m.sent))
	copy(sent, m.sent)

	return sent
}

// Reset clears the record of sent mail.
func (m *MockMailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = nil
}
