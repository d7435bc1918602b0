package chat

import (
	"sync"
	"sync/atomic"
)

// Session is the client's view of one Genie conversation. The id is set once
// and never refreshed; an expired conversation surfaces as an error on the
// next message.
type Session struct {
	mu             sync.Mutex
	conversationId string
	inFlight       atomic.Bool
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationId
}

func (s *Session) setConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationId = id
}

func (s *Session) Started() bool {
	return s.ConversationID() != ""
}

func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

// begin claims the session for one request. It fails while another request
// is in flight.
func (s *Session) begin() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

func (s *Session) end() {
	s.inFlight.Store(false)
}
