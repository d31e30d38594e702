package chat

import "github.com/barotovamirbek/elowy-chat/internal/models"

// Store is the ordered list of messages for the conversation in view.
// Order is arrival order. There is no dedup by id: a message delivered
// twice is shown twice.
type Store struct {
	messages []models.Message
}

func NewStore() *Store {
	return &Store{messages: []models.Message{}}
}

// Replace swaps the whole sequence, e.g. after a history fetch.
func (s *Store) Replace(messages []models.Message) {
	next := make([]models.Message, len(messages))
	copy(next, messages)
	s.messages = next
}

func (s *Store) Append(msg models.Message) {
	s.messages = append(s.messages, msg)
}

func (s *Store) Clear() {
	s.messages = []models.Message{}
}

// Snapshot returns a copy safe to hand to a renderer.
func (s *Store) Snapshot() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
