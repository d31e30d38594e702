// Package assistant produces AI replies for questions asked in chats.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/barotovamirbek/elowy-chat/internal/config"
	"github.com/barotovamirbek/elowy-chat/internal/models"
)

var ErrEmptyAnswer = errors.New("empty answer")

// Responder answers a single prompt.
type Responder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// OpenAI talks to any OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	instruction string
	timeout     time.Duration
}

func NewOpenAI(cfg config.AIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		instruction: cfg.Instruction,
		timeout:     cfg.Timeout,
	}
}

func (o *OpenAI) Reply(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{}
	if o.instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.instruction})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// Router decides which messages are questions for the responder and where
// the answers go.
type Router struct {
	ResponderID   int
	MentionPrefix string
}

// Prompt returns the question text and true if msg is addressed to the
// responder: a direct message to the responder id, or any message starting
// with the mention prefix.
func (r Router) Prompt(msg models.Message) (string, bool) {
	if msg.IsAIResponse || msg.SenderID == r.ResponderID {
		return "", false
	}
	content := strings.TrimSpace(msg.Content)
	if r.MentionPrefix != "" && strings.HasPrefix(strings.ToLower(content), strings.ToLower(r.MentionPrefix)) {
		prompt := strings.TrimSpace(content[len(r.MentionPrefix):])
		return prompt, prompt != ""
	}
	if msg.ReceiverID != nil && *msg.ReceiverID == r.ResponderID {
		return content, content != ""
	}
	return "", false
}

// ReplyFor builds the message carrying answer back to where question was
// asked. Group questions are answered in the group. Direct questions are
// answered to the asker, tagged with the conversation they came from.
func (r Router) ReplyFor(question models.Message, answer string) models.Message {
	reply := models.Message{
		SenderID:     r.ResponderID,
		IsAIResponse: true,
		Content:      answer,
	}
	if question.GroupID != nil {
		reply.GroupID = models.IntPtr(*question.GroupID)
		return reply
	}
	reply.ReceiverID = models.IntPtr(question.SenderID)
	if question.ReceiverID != nil {
		reply.ContextChatID = models.IntPtr(*question.ReceiverID)
	}
	return reply
}
