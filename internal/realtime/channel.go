// Package realtime is the client end of the websocket event stream.
package realtime

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

var ErrClosed = errors.New("realtime channel closed")

// State of a Channel. A channel only moves forward; Disconnected after
// Subscribed is terminal.
type State int32

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

const writeWait = 10 * time.Second

// Channel owns one websocket connection. Inbound events are delivered to the
// handler from a single goroutine, one at a time.
type Channel struct {
	conn  *websocket.Conn
	state atomic.Int32

	handlerMu sync.Mutex
	handler   func(models.Event)

	writeMu sync.Mutex

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	err       error

	log logrus.FieldLogger
}

// Dial connects to wsURL, sends the authenticate frame carrying token and
// starts delivering events to handler.
func Dial(ctx context.Context, wsURL, token string, handler func(models.Event), log logrus.FieldLogger) (*Channel, error) {
	c := &Channel{
		handler: handler,
		done:    make(chan struct{}),
		log:     log.WithField("component", "realtime"),
	}
	c.setState(Connecting)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.setState(Disconnected)
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", wsURL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", wsURL)
	}
	c.conn = conn

	if err := c.write(ctx, models.EventAuthenticate, models.AuthenticatePayload{Token: token}); err != nil {
		c.setState(Disconnected)
		_ = conn.Close()
		return nil, errors.Wrap(err, "send authenticate")
	}
	c.setState(Authenticated)

	// the read loop owns the transition to Disconnected
	c.setState(Subscribed)
	go c.readLoop()
	c.log.Debug("realtime channel subscribed")
	return c, nil
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

// Done is closed once the connection is gone, whether by Close or by a drop.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended. It is nil after Close and
// only meaningful once Done is closed.
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Channel) readLoop() {
	defer func() {
		c.setState(Disconnected)
		close(c.done)
	}()

	for {
		var ev models.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if !c.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.err = errors.Wrap(err, "read event")
				c.log.WithError(err).Warn("realtime channel dropped")
			}
			return
		}
		c.handlerMu.Lock()
		h := c.handler
		c.handlerMu.Unlock()
		if h != nil {
			h(ev)
		}
	}
}

// Send writes one outbound event.
func (c *Channel) Send(ctx context.Context, event string, payload interface{}) error {
	if c.State() != Subscribed || c.closing.Load() {
		return ErrClosed
	}
	return c.write(ctx, event, payload)
}

func (c *Channel) write(ctx context.Context, event string, payload interface{}) error {
	ev, err := models.NewEvent(event, payload)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	return errors.Wrap(c.conn.WriteJSON(ev), "write event")
}

// Close tears the connection down, waits for the read loop to exit and
// detaches the handler. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		_ = c.conn.Close()
		<-c.done

		c.handlerMu.Lock()
		c.handler = nil
		c.handlerMu.Unlock()
		c.log.Debug("realtime channel closed")
	})
	return nil
}

// URL turns the HTTP base URL of the server into its websocket endpoint.
func URL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", errors.Wrap(err, "parse server url")
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
