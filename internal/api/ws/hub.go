package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/assistant"
	"github.com/barotovamirbek/elowy-chat/internal/auth"
	"github.com/barotovamirbek/elowy-chat/internal/metrics"
	"github.com/barotovamirbek/elowy-chat/internal/models"
)

type MessageStore interface {
	SaveMessage(ctx context.Context, msg models.Message) (models.Message, error)
}

type GroupMembers interface {
	MemberIDs(ctx context.Context, groupID int) ([]int, error)
	MemberRole(ctx context.Context, groupID, userID int) (string, error)
}

type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

type Config struct {
	AuthTimeout time.Duration
	AI          assistant.Router
}

// Hub хранит все подключения (userID -> клиенты)
// и раздаёт события участникам диалогов и групп.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]map[*Client]struct{}

	messages MessageStore
	groups   GroupMembers
	tokens   TokenVerifier
	ai       assistant.Responder
	aiRouter assistant.Router

	authTimeout time.Duration
	validate    *validator.Validate
	metrics     *metrics.Metrics
	log         logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	// pending tracks AI replies in flight. No new ones start once stopped is set.
	pendingMu sync.Mutex
	stopped   bool
	pending   sync.WaitGroup
}

// NewHub builds a hub. responder may be nil, in which case questions for the
// AI responder are stored and delivered but never answered.
func NewHub(cfg Config, messages MessageStore, groups GroupMembers, tokens TokenVerifier,
	responder assistant.Responder, m *metrics.Metrics, log logrus.FieldLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[int]map[*Client]struct{}),
		messages:    messages,
		groups:      groups,
		tokens:      tokens,
		ai:          responder,
		aiRouter:    cfg.AI,
		authTimeout: cfg.AuthTimeout,
		validate:    validator.New(),
		metrics:     m,
		log:         log.WithField("component", "hub"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	set, ok := h.clients[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.UserID] = set
	}
	set[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.Connections.Inc()
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	set, ok := h.clients[client.UserID]
	if ok {
		if _, present := set[client]; present {
			delete(set, client)
			if len(set) == 0 {
				delete(h.clients, client.UserID)
			}
			h.metrics.Connections.Dec()
		}
	}
	h.mu.Unlock()
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendToUser queues data on every connection of userID. A connection whose
// buffer is full misses the frame.
func (h *Hub) SendToUser(userID int, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.Send <- data:
		default:
			h.log.WithField("user_id", userID).Warn("send buffer full, dropping frame")
		}
	}
}

// Emit sends one event to every listed user, once per user.
func (h *Hub) Emit(userIDs []int, event string, payload interface{}) {
	ev, err := models.NewEvent(event, payload)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("encode event")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("encode envelope")
		return
	}
	seen := make(map[int]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		h.SendToUser(id, data)
	}
}

// EmitToGroup sends an event to all current members of groupID.
func (h *Hub) EmitToGroup(ctx context.Context, groupID int, event string, payload interface{}) error {
	ids, err := h.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return err
	}
	h.Emit(ids, event, payload)
	return nil
}

// startReply runs fn as a tracked AI reply. It reports false after Shutdown.
func (h *Hub) startReply(fn func()) bool {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	if h.stopped {
		return false
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		fn()
	}()
	return true
}

// Shutdown closes every connection and waits for pending AI replies.
func (h *Hub) Shutdown() {
	h.pendingMu.Lock()
	h.stopped = true
	h.pendingMu.Unlock()
	h.cancel()
	h.mu.Lock()
	for _, set := range h.clients {
		for c := range set {
			_ = c.Conn.Close()
		}
	}
	h.mu.Unlock()
	h.pending.Wait()
}
