package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/models"
	"github.com/barotovamirbek/elowy-chat/internal/repository"
)

const handleTimeout = 5 * time.Second

var errNotMember = errors.New("not a member of this group")

func (h *Hub) handle(c *Client, ev models.Event) {
	ctx, cancel := context.WithTimeout(h.ctx, handleTimeout)
	defer cancel()

	var err error
	switch ev.Event {
	case models.EventSendMessage:
		var payload models.SendMessagePayload
		if err = h.decode(ev.Data, &payload); err == nil {
			err = h.handleDirect(ctx, c, payload)
		}
	case models.EventSendGroupMessage:
		var payload models.SendGroupMessagePayload
		if err = h.decode(ev.Data, &payload); err == nil {
			err = h.handleGroup(ctx, c, payload)
		}
	default:
		err = errors.Errorf("unknown event %q", ev.Event)
	}
	if err != nil {
		c.log.WithError(err).WithField("event", ev.Event).Warn("event rejected")
		c.sendError(errors.Cause(err).Error())
	}
}

func (h *Hub) decode(data json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "malformed payload")
	}
	return h.validate.Struct(out)
}

// Личное сообщение: сохраняем и отправляем обоим участникам.
func (h *Hub) handleDirect(ctx context.Context, c *Client, payload models.SendMessagePayload) error {
	saved, err := h.messages.SaveMessage(ctx, models.Message{
		SenderID:   c.UserID,
		ReceiverID: models.IntPtr(payload.ReceiverID),
		Content:    payload.Content,
	})
	if err != nil {
		return errors.Wrap(err, "save message")
	}
	h.metrics.Messages.WithLabelValues("direct").Inc()
	h.Emit([]int{saved.SenderID, payload.ReceiverID}, models.EventNewMessage, saved)
	h.maybeAnswer(saved)
	return nil
}

// Групповое сообщение: только участник может писать, получают все участники.
func (h *Hub) handleGroup(ctx context.Context, c *Client, payload models.SendGroupMessagePayload) error {
	if _, err := h.groups.MemberRole(ctx, payload.GroupID, c.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errNotMember
		}
		return errors.Wrap(err, "check membership")
	}
	saved, err := h.messages.SaveMessage(ctx, models.Message{
		SenderID: c.UserID,
		GroupID:  models.IntPtr(payload.GroupID),
		Content:  payload.Content,
	})
	if err != nil {
		return errors.Wrap(err, "save group message")
	}
	h.metrics.Messages.WithLabelValues("group").Inc()
	if err := h.EmitToGroup(ctx, payload.GroupID, models.EventNewGroupMessage, saved); err != nil {
		return errors.Wrap(err, "fan out group message")
	}
	h.maybeAnswer(saved)
	return nil
}

func (h *Hub) maybeAnswer(question models.Message) {
	prompt, ok := h.aiRouter.Prompt(question)
	if !ok {
		return
	}
	if h.ai == nil {
		h.metrics.AIReplies.WithLabelValues("disabled").Inc()
		return
	}
	if !h.startReply(func() { h.answer(question, prompt) }) {
		h.metrics.AIReplies.WithLabelValues("dropped").Inc()
		h.log.WithField("question_id", question.ID).Debug("hub stopped, question not answered")
	}
}

func (h *Hub) answer(question models.Message, prompt string) {
	log := h.log.WithFields(logrus.Fields{"question_id": question.ID, "asker_id": question.SenderID})

	text, err := h.ai.Reply(h.ctx, prompt)
	if err != nil {
		h.metrics.AIReplies.WithLabelValues("error").Inc()
		log.WithError(err).Error("AI responder failed")
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, handleTimeout)
	defer cancel()

	reply, err := h.messages.SaveMessage(ctx, h.aiRouter.ReplyFor(question, text))
	if err != nil {
		h.metrics.AIReplies.WithLabelValues("error").Inc()
		log.WithError(err).Error("save AI reply")
		return
	}
	h.metrics.AIReplies.WithLabelValues("ok").Inc()

	if reply.GroupID != nil {
		if err := h.EmitToGroup(ctx, *reply.GroupID, models.EventNewGroupMessage, reply); err != nil {
			log.WithError(err).Error("fan out AI group reply")
		}
		return
	}
	h.Emit([]int{*reply.ReceiverID}, models.EventNewMessage, reply)
	log.Debug("AI reply delivered")
}
