package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/barotovamirbek/elowy-chat/internal/models"
	"github.com/barotovamirbek/elowy-chat/internal/repository"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

func userIDFrom(ctx context.Context) int {
	id, _ := ctx.Value(userIDKey).(int)
	return id
}

// ---------- Register ----------

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "hash password"))
		return
	}
	user, err := h.users.CreateUser(r.Context(), models.User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// ---------- Login ----------

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.internalError(w, r, err)
		return
	}
	if user.IsSystem {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: *user})
}

// ---------- Profile ----------

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "user no longer exists")
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		claims, err := h.tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
