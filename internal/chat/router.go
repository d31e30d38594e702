// Package chat holds the client-side state of the chat view: which
// conversation is selected, the messages visible for it, the group list,
// and the rules deciding which realtime events belong on screen.
package chat

import "github.com/barotovamirbek/elowy-chat/internal/models"

// Kind is the realtime event family a message arrived on.
type Kind int

const (
	KindDirect Kind = iota
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "direct"
}

// Match is the routing decision for one inbound message.
type Match int

const (
	NoMatch Match = iota
	// DirectMatch: ordinary exchange between the user and the selected peer.
	DirectMatch
	// AiContextMatch: an AI reply to a question asked in the selected conversation.
	AiContextMatch
	// AiDirectMatch: an AI reply addressed to the user while the AI conversation is open.
	AiDirectMatch
	// GroupMatch: a message for the selected group.
	GroupMatch
)

func (m Match) String() string {
	switch m {
	case DirectMatch:
		return "direct"
	case AiContextMatch:
		return "ai_context"
	case AiDirectMatch:
		return "ai_direct"
	case GroupMatch:
		return "group"
	default:
		return "none"
	}
}

// Accepted reports whether the message should be appended to the visible store.
func (m Match) Accepted() bool {
	return m != NoMatch
}

// Router classifies inbound messages against a selection. It has no state
// besides the two identities it compares against.
type Router struct {
	UserID        int
	AIResponderID int
}

// Classify decides whether msg, received as kind, belongs to selected.
// A nil selection never matches.
func (r Router) Classify(kind Kind, msg models.Message, selected *models.Target) Match {
	if selected == nil {
		return NoMatch
	}
	switch kind {
	case KindDirect:
		return r.classifyDirect(msg, *selected)
	case KindGroup:
		if selected.IsGroup() && msg.GroupID != nil && *msg.GroupID == selected.ID {
			return GroupMatch
		}
	}
	return NoMatch
}

func (r Router) classifyDirect(msg models.Message, selected models.Target) Match {
	// Only ids are compared; the selection type is not consulted for direct events.
	if msg.ReceiverID != nil {
		receiver := *msg.ReceiverID
		if msg.SenderID == r.UserID && receiver == selected.ID {
			return DirectMatch
		}
		if msg.SenderID == selected.ID && receiver == r.UserID {
			return DirectMatch
		}
	}
	if !msg.IsAIResponse {
		return NoMatch
	}
	if msg.ContextChatID != nil && *msg.ContextChatID == selected.ID {
		return AiContextMatch
	}
	if msg.ReceiverID != nil && *msg.ReceiverID == r.UserID && selected.ID == r.AIResponderID {
		return AiDirectMatch
	}
	return NoMatch
}
