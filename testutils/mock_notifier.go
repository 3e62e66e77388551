package testutils

import "sync"

// Message is one captured notification.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// MockNotifier records notifications.
type MockNotifier struct {
	mu   sync.Mutex
	sent []Message
	// Fail, when set, is returned after recording.
	Fail error
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (n *MockNotifier) Notify(recipient, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Message{Recipient: recipient, Subject: subject, Body: body})
	return n.Fail
}

// Sent returns a copy of every captured message.
func (n *MockNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent...)
}

// Subjects lists the captured subjects in order.
func (n *MockNotifier) Subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Subject)
	}
	return out
}
