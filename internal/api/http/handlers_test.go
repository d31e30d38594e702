package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/barotovamirbek/elowy-chat/internal/auth"
	"github.com/barotovamirbek/elowy-chat/internal/logging"
	"github.com/barotovamirbek/elowy-chat/internal/models"
	"github.com/barotovamirbek/elowy-chat/internal/repository"
)

type fakeUsers struct {
	mu    sync.Mutex
	users []models.User
}

func (f *fakeUsers) CreateUser(_ context.Context, user models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return nil, repository.ErrDuplicate
		}
	}
	user.ID = len(f.users) + 1
	f.users = append(f.users, user)
	return &user, nil
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeMessages struct{}

func (fakeMessages) GetDirectMessages(_ context.Context, userID, peerID int) ([]models.Message, error) {
	return []models.Message{{ID: 1, SenderID: peerID, ReceiverID: models.IntPtr(userID), Content: "hello"}}, nil
}

func (fakeMessages) GetGroupMessages(_ context.Context, groupID int) ([]models.Message, error) {
	return []models.Message{{ID: 2, SenderID: 5, GroupID: models.IntPtr(groupID), Content: "group hello"}}, nil
}

// fakeGroups holds group 10 owned by user 1, with user 2 as admin and user 4 as member.
type fakeGroups struct {
	mu      sync.Mutex
	group   models.Group
	roles   map[int]string
	deleted bool
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{
		group: models.Group{ID: 10, Name: "team", CreatedBy: 1},
		roles: map[int]string{1: models.RoleOwner, 2: models.RoleAdmin, 4: models.RoleMember},
	}
}

func (f *fakeGroups) CreateGroup(_ context.Context, g models.Group, _ []int) (*models.Group, error) {
	g.ID = 11
	return &g, nil
}

func (f *fakeGroups) GetUserGroups(_ context.Context, userID int) ([]models.Group, error) {
	if _, ok := f.roles[userID]; ok {
		return []models.Group{f.group}, nil
	}
	return []models.Group{}, nil
}

func (f *fakeGroups) MemberRole(_ context.Context, groupID, userID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[userID]
	if groupID != f.group.ID || !ok || f.deleted {
		return "", repository.ErrNotFound
	}
	return role, nil
}

func (f *fakeGroups) MemberIDs(_ context.Context, _ int) ([]int, error) {
	return []int{1, 2, 4}, nil
}

func (f *fakeGroups) UpdateGroup(_ context.Context, patch models.GroupPatch) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	patch.Apply(&f.group)
	g := f.group
	return &g, nil
}

func (f *fakeGroups) DeleteGroup(_ context.Context, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = true
	return nil
}

type emitted struct {
	users   []int
	event   string
	payload interface{}
}

type fakeNotifier struct {
	events []emitted
}

func (f *fakeNotifier) Emit(userIDs []int, event string, payload interface{}) {
	f.events = append(f.events, emitted{users: userIDs, event: event, payload: payload})
}

type apiHarness struct {
	router   http.Handler
	tokens   *auth.Tokens
	notifier *fakeNotifier
	groups   *fakeGroups
}

func newAPIHarness() *apiHarness {
	tokens := auth.NewTokens("api-secret", time.Hour)
	notifier := &fakeNotifier{}
	groups := newFakeGroups()
	h := NewHandler(&fakeUsers{}, fakeMessages{}, groups, tokens, notifier, logging.Discard())
	return &apiHarness{
		router:   NewRouter(h, func(w http.ResponseWriter, r *http.Request) {}, http.NotFoundHandler()),
		tokens:   tokens,
		notifier: notifier,
		groups:   groups,
	}
}

func (a *apiHarness) do(t *testing.T, method, path string, userID int, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		tok, err := a.tokens.Issue(userID, "u")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginMe(t *testing.T) {
	a := newAPIHarness()

	rec := a.do(t, http.MethodPost, "/api/auth/register", 0, models.RegisterRequest{
		Name: "Alice", Username: "alice", Email: "alice@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret1")

	rec = a.do(t, http.MethodPost, "/api/auth/register", 0, models.RegisterRequest{
		Name: "Alice", Username: "alice", Email: "alice@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/auth/register", 0, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/auth/login", 0, models.LoginRequest{Username: "alice", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/auth/login", 0, models.LoginRequest{Username: "alice", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login models.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	require.Equal(t, "alice", login.User.Username)

	claims, err := a.tokens.Parse(login.Token)
	require.NoError(t, err)

	rec = a.do(t, http.MethodGet, "/api/auth/me", claims.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = a.do(t, http.MethodGet, "/api/auth/me", 0, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSystemAccountCannotLogIn(t *testing.T) {
	users := &fakeUsers{}
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	users.users = append(users.users, models.User{
		ID: models.DefaultAIResponderID, Username: "system3", PasswordHash: string(hash), IsSystem: true,
	})
	tokens := auth.NewTokens("api-secret", time.Hour)
	h := NewHandler(users, fakeMessages{}, newFakeGroups(), tokens, &fakeNotifier{}, logging.Discard())
	router := NewRouter(h, func(w http.ResponseWriter, r *http.Request) {}, http.NotFoundHandler())

	body, err := json.Marshal(models.LoginRequest{Username: "system3", Password: "secret1"})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotContains(t, rec.Body.String(), "token")
}

func TestHistoryEndpoints(t *testing.T) {
	a := newAPIHarness()

	rec := a.do(t, http.MethodGet, "/api/messages/2", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Messages, 1)
	require.Equal(t, 2, body.Messages[0].SenderID)

	rec = a.do(t, http.MethodGet, "/api/groups/10/messages", 4, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "group hello")

	rec = a.do(t, http.MethodGet, "/api/groups/10/messages", 9, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/messages/abc", 1, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateGroupNotifiesMembers(t *testing.T) {
	a := newAPIHarness()
	name := "renamed"

	rec := a.do(t, http.MethodPatch, "/api/groups/10", 4, models.GroupPatch{Name: &name})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, a.notifier.events)

	rec = a.do(t, http.MethodPatch, "/api/groups/10", 2, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPatch, "/api/groups/10", 2, models.GroupPatch{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, a.notifier.events, 1)
	ev := a.notifier.events[0]
	require.Equal(t, models.EventGroupUpdated, ev.event)
	require.Equal(t, []int{1, 2, 4}, ev.users)
	patch := ev.payload.(models.GroupPatch)
	require.Equal(t, 10, patch.ID)
	require.Equal(t, "renamed", *patch.Name)
	require.Nil(t, patch.Description)
}

func TestDeleteGroupOwnerOnly(t *testing.T) {
	a := newAPIHarness()

	rec := a.do(t, http.MethodDelete, "/api/groups/10", 2, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/groups/10", 1, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, a.notifier.events, 1)
	require.Equal(t, models.EventGroupDeleted, a.notifier.events[0].event)
	require.Equal(t, models.GroupDeleted{ID: 10}, a.notifier.events[0].payload)

	rec = a.do(t, http.MethodDelete, "/api/groups/10", 1, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	a := newAPIHarness()
	rec := a.do(t, http.MethodOptions, "/api/groups/10", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
