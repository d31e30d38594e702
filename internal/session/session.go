// Package session keeps the authenticated user and token of the client and
// performs authenticated requests against the chat server.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

var ErrUnauthenticated = errors.New("not logged in")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger

	mu    sync.RWMutex
	token string
	user  *models.User
	ended chan struct{}
}

func New(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	ended := make(chan struct{})
	close(ended)
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.WithField("component", "session"),
		ended:   ended,
	}
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &user, false); err != nil {
		return nil, errors.Wrap(err, "register")
	}
	return &user, nil
}

// Login exchanges credentials for a token and keeps both token and user.
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Username: username, Password: password}, &resp, false)
	if err != nil {
		return nil, errors.Wrap(err, "login")
	}
	c.mu.Lock()
	c.endLocked()
	c.token = resp.Token
	user := resp.User
	c.user = &user
	c.ended = make(chan struct{})
	c.mu.Unlock()

	c.log.WithField("user_id", user.ID).Info("logged in")
	return &user, nil
}

// Logout drops the token and user and ends the session.
func (c *Client) Logout() {
	c.mu.Lock()
	c.endLocked()
	c.token = ""
	c.user = nil
	c.mu.Unlock()
}

func (c *Client) endLocked() {
	select {
	case <-c.ended:
	default:
		close(c.ended)
	}
}

// Done is closed when the current session ends, by Logout or because the
// server rejected the token. Before Login it is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

func (c *Client) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

// FetchHistory returns the raw history body for target.
func (c *Client) FetchHistory(ctx context.Context, target models.Target) ([]byte, error) {
	path := fmt.Sprintf("/api/messages/%d", target.ID)
	if target.IsGroup() {
		path = fmt.Sprintf("/api/groups/%d/messages", target.ID)
	}
	var raw json.RawMessage
	if err := c.Get(ctx, path, &raw); err != nil {
		return nil, errors.Wrapf(err, "fetch history %s/%d", target.Type, target.ID)
	}
	return raw, nil
}

func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.Get(ctx, "/api/groups", &groups); err != nil {
		return nil, errors.Wrap(err, "list groups")
	}
	return groups, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token := c.Token()
		if token == "" {
			return ErrUnauthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && auth {
		// expired or revoked token: drop the session so the caller re-authenticates
		c.log.Warn("token rejected, session ended")
		c.Logout()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}
