package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

type MessageRepository struct {
	DB *sqlx.DB
}

const messageColumns = `id, sender_id, receiver_id, group_id, is_ai_response, context_chat_id, content, created_at`

// SaveMessage stores a direct or group message and fills in id and timestamp.
func (r *MessageRepository) SaveMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, group_id, is_ai_response, context_chat_id, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.DB.QueryRowxContext(ctx, query,
		msg.SenderID, msg.ReceiverID, msg.GroupID, msg.IsAIResponse, msg.ContextChatID, msg.Content,
	).Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		return msg, errors.Wrap(err, "insert message")
	}
	return msg, nil
}

// GetDirectMessages returns the exchange between userID and peerID in
// creation order, including AI replies delivered to userID in that context.
func (r *MessageRepository) GetDirectMessages(ctx context.Context, userID, peerID int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE group_id IS NULL
		  AND ((sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		    OR (is_ai_response AND receiver_id = $1 AND context_chat_id = $2))
		ORDER BY created_at ASC, id ASC`
	messages := []models.Message{}
	if err := r.DB.SelectContext(ctx, &messages, query, userID, peerID); err != nil {
		return nil, errors.Wrap(err, "select direct messages")
	}
	return messages, nil
}

func (r *MessageRepository) GetGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE group_id = $1
		ORDER BY created_at ASC, id ASC`
	messages := []models.Message{}
	if err := r.DB.SelectContext(ctx, &messages, query, groupID); err != nil {
		return nil, errors.Wrap(err, "select group messages")
	}
	return messages, nil
}
