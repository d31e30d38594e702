package models

import "time"

// DefaultAIResponderID is the user id the realtime server tags AI-generated
// messages with. Server and client must agree on it.
const DefaultAIResponderID = 3

// Message is either direct (ReceiverID set) or group (GroupID set).
// AI replies also carry ContextChatID, the conversation the question was asked in.
type Message struct {
	ID            int       `db:"id" json:"id"`
	SenderID      int       `db:"sender_id" json:"sender_id"`
	ReceiverID    *int      `db:"receiver_id" json:"receiver_id,omitempty"`
	GroupID       *int      `db:"group_id" json:"group_id,omitempty"`
	IsAIResponse  bool      `db:"is_ai_response" json:"is_ai_response"`
	ContextChatID *int      `db:"context_chat_id" json:"context_chat_id,omitempty"`
	Content       string    `db:"content" json:"content"`
	Timestamp     time.Time `db:"created_at" json:"timestamp"`
}

func (m Message) IsGroup() bool {
	return m.GroupID != nil
}

// IntPtr is a helper for the optional id fields.
func IntPtr(v int) *int {
	return &v
}

// TargetType distinguishes direct peers from groups.
type TargetType string

const (
	TargetDirect TargetType = "direct"
	TargetGroup  TargetType = "group"
)

// Target is the conversation currently in view: a direct peer
// (possibly the AI responder) or a group.
type Target struct {
	ID   int        `json:"id"`
	Type TargetType `json:"type"`
	Name string     `json:"name,omitempty"`
}

func (t Target) IsGroup() bool {
	return t.Type == TargetGroup
}

func DirectTarget(peerID int) Target {
	return Target{ID: peerID, Type: TargetDirect}
}

func GroupTarget(groupID int) Target {
	return Target{ID: groupID, Type: TargetGroup}
}
