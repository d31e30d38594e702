package models

import "encoding/json"

// Realtime event names. The server emits the first group, the client the second.
const (
	EventNewMessage      = "new message"
	EventNewGroupMessage = "new group message"
	EventGroupUpdated    = "group updated"
	EventGroupDeleted    = "group deleted"
	EventError           = "error"

	EventAuthenticate     = "authenticate"
	EventSendMessage      = "send message"
	EventSendGroupMessage = "send group message"
)

// Event is the envelope of every websocket frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEvent(name string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: data}, nil
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type SendMessagePayload struct {
	ReceiverID int    `json:"receiver_id" validate:"required,gt=0"`
	Content    string `json:"content" validate:"required,max=4000"`
}

type SendGroupMessagePayload struct {
	GroupID int    `json:"group_id" validate:"required,gt=0"`
	Content string `json:"content" validate:"required,max=4000"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
