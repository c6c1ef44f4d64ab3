package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
	gate chan struct{}
}

func (s *captureSender) Send(msg Message) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *captureSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func TestDispatcherDeliversQueuedMail(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 8, zap.NewNop())

	d.EnqueueOTP("guest@example.com", "123456", "Lobby WiFi")
	d.Close()

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "guest@example.com", msgs[0].To)
	require.Equal(t, "Lobby WiFi access code", msgs[0].Subject)
	require.Contains(t, msgs[0].Body, "123456")
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sender := &captureSender{gate: make(chan struct{})}
	d := NewDispatcher(sender, 1, zap.NewNop())

	// First message occupies the worker, second fills the buffer,
	// the rest must be dropped without blocking.
	for i := 0; i < 5; i++ {
		d.Enqueue(Message{To: "guest@example.com", Subject: "x"})
	}

	require.Eventually(t, func() bool { return d.Dropped() >= 3 }, time.Second, 5*time.Millisecond)
	close(sender.gate)
	d.Close()
}

func TestEnqueueAfterCloseIsNoOp(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 8, zap.NewNop())
	d.Close()

	d.Enqueue(Message{To: "guest@example.com"})
	require.Empty(t, sender.messages())
}
