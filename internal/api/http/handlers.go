package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/auth"
	"github.com/barotovamirbek/elowy-chat/internal/models"
)

type Users interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type Messages interface {
	GetDirectMessages(ctx context.Context, userID, peerID int) ([]models.Message, error)
	GetGroupMessages(ctx context.Context, groupID int) ([]models.Message, error)
}

type Groups interface {
	CreateGroup(ctx context.Context, group models.Group, memberIDs []int) (*models.Group, error)
	GetUserGroups(ctx context.Context, userID int) ([]models.Group, error)
	MemberRole(ctx context.Context, groupID, userID int) (string, error)
	MemberIDs(ctx context.Context, groupID int) ([]int, error)
	UpdateGroup(ctx context.Context, patch models.GroupPatch) (*models.Group, error)
	DeleteGroup(ctx context.Context, groupID int) error
}

// Notifier pushes realtime events to connected users.
type Notifier interface {
	Emit(userIDs []int, event string, payload interface{})
}

type Handler struct {
	users    Users
	messages Messages
	groups   Groups
	tokens   *auth.Tokens
	notifier Notifier
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewHandler(users Users, messages Messages, groups Groups, tokens *auth.Tokens, notifier Notifier, log logrus.FieldLogger) *Handler {
	return &Handler{
		users:    users,
		messages: messages,
		groups:   groups,
		tokens:   tokens,
		notifier: notifier,
		validate: validator.New(),
		log:      log.WithField("component", "http"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "invalid JSON body")
	}
	return h.validate.Struct(v)
}

// internalError logs err and answers 500 without leaking details.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.WithError(err).WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": requestIDFrom(r.Context()),
	}).Error("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
