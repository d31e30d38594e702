package chat

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

// HistoryFetcher loads the stored history of a conversation. Implementations
// pick the group or direct endpoint from target.Type and return the raw body.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, target models.Target) ([]byte, error)
}

// DecodeHistory normalizes a history response body. Accepted shapes are
// {"messages": [...]}, {"data": [...]} and a bare array; anything else
// yields an empty list.
func DecodeHistory(body []byte) []models.Message {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []models.Message{}
	}

	if body[0] == '[' {
		var list []models.Message
		if err := json.Unmarshal(body, &list); err == nil && list != nil {
			return list
		}
		return []models.Message{}
	}

	var wrapped struct {
		Messages []models.Message `json:"messages"`
		Data     []models.Message `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return []models.Message{}
	}
	switch {
	case wrapped.Messages != nil:
		return wrapped.Messages
	case wrapped.Data != nil:
		return wrapped.Data
	}
	return []models.Message{}
}
