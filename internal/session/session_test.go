package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/barotovamirbek/elowy-chat/internal/chat"
	"github.com/barotovamirbek/elowy-chat/internal/logging"
	"github.com/barotovamirbek/elowy-chat/internal/models"
)

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(models.LoginResponse{Token: "tok-1", User: models.User{ID: 1, Username: req.Username}})
	})
	mux.HandleFunc("/api/messages/2", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"sender_id":2,"receiver_id":1,"content":"hi"}]}`))
	})
	mux.HandleFunc("/api/groups/10/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"sender_id":4,"group_id":10,"content":"g"}]`))
	})
	mux.HandleFunc("/api/groups", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Group{{ID: 10, Name: "team"}})
	})
	mux.HandleFunc("/api/messages/9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAndFetch(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL+"/", time.Second, logging.Discard())

	_, err := c.FetchHistory(context.Background(), models.DirectTarget(2))
	require.True(t, errors.Is(err, ErrUnauthenticated))

	user, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, 1, user.ID)
	require.Equal(t, "tok-1", c.Token())

	body, err := c.FetchHistory(context.Background(), models.DirectTarget(2))
	require.NoError(t, err)
	msgs := chat.DecodeHistory(body)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Content)

	body, err = c.FetchHistory(context.Background(), models.GroupTarget(10))
	require.NoError(t, err)
	require.Len(t, chat.DecodeHistory(body), 1)

	groups, err := c.Groups(context.Background())
	require.NoError(t, err)
	require.Equal(t, "team", groups[0].Name)
}

func TestLoginRejected(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second, logging.Discard())

	_, err := c.Login(context.Background(), "alice", "nope")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)
	require.Equal(t, "invalid credentials", statusErr.Message)
	require.Nil(t, c.User())
}

func TestUnauthorizedDropsSession(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second, logging.Discard())
	_, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	done := c.Done()
	select {
	case <-done:
		t.Fatal("session ended before the token was rejected")
	default:
	}

	_, err = c.FetchHistory(context.Background(), models.DirectTarget(9))
	require.Error(t, err)
	require.Empty(t, c.Token())
	require.Nil(t, c.User())
	select {
	case <-done:
	default:
		t.Fatal("session end not signalled")
	}
}

func TestDoneBeforeLogin(t *testing.T) {
	c := New("http://localhost", time.Second, logging.Discard())
	select {
	case <-c.Done():
	default:
		t.Fatal("no session yet, Done should be closed")
	}
}

// chatConn is a realtime connection stand-in for the view.
type chatConn struct {
	mu     sync.Mutex
	done   chan struct{}
	closed int
}

func (c *chatConn) Send(context.Context, string, interface{}) error { return nil }
func (c *chatConn) Done() <-chan struct{}                           { return c.done }
func (c *chatConn) Err() error                                      { return nil }

func (c *chatConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func TestRejectedTokenClosesChatChannel(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, time.Second, logging.Discard())
	user, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	view := chat.NewView(user.ID, models.DefaultAIResponderID, c, logging.Discard(), chat.WithSession(c))
	conn := &chatConn{done: make(chan struct{})}
	errCh := make(chan error, 1)
	go func() {
		errCh <- view.Run(context.Background(), func(context.Context, func(models.Event)) (chat.Connection, error) {
			return conn, nil
		})
	}()

	require.Eventually(t, func() bool {
		return view.Send(context.Background(), "x") != chat.ErrNotConnected
	}, time.Second, 5*time.Millisecond)

	// the history endpoint for 9 answers 401
	view.Select(context.Background(), models.DirectTarget(9))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, chat.ErrSessionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("realtime channel kept open after the session ended")
	}
	conn.mu.Lock()
	require.Equal(t, 1, conn.closed)
	conn.mu.Unlock()
	require.Empty(t, view.Snapshot().Messages)
}
