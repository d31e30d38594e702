package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

var (
	ErrNotConnected = errors.New("realtime channel is not connected")
	ErrNoSelection  = errors.New("no conversation selected")
	ErrSessionLost  = errors.New("session ended")
)

// Snapshot is an immutable copy of the view state handed to renderers.
type Snapshot struct {
	Selected *models.Target
	Messages []models.Message
	Groups   []models.Group

	seq uint64
}

// Connection is a live realtime channel owned by a running View.
type Connection interface {
	Send(ctx context.Context, event string, payload interface{}) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Session reports the end of the authenticated session. Done is closed on
// logout or when the server rejects the token.
type Session interface {
	Done() <-chan struct{}
}

// Dialer opens a realtime channel delivering inbound events to handler.
type Dialer func(ctx context.Context, handler func(models.Event)) (Connection, error)

// View is the state of one mounted chat screen. Every mutation happens under
// mu, so realtime events and user actions are applied one at a time.
type View struct {
	mu         sync.Mutex
	router     Router
	store      *Store
	selected   *models.Target
	groups     []models.Group
	generation uint64
	seq        uint64
	conn       Connection

	fetcher  HistoryFetcher
	session  Session
	onChange func(Snapshot)
	log      logrus.FieldLogger

	notifyMu  sync.Mutex
	delivered uint64
}

type Option func(*View)

// WithOnChange registers a callback invoked after every visible change.
// It runs outside the view lock, one call at a time, and never receives a
// snapshot older than one it already got.
func WithOnChange(fn func(Snapshot)) Option {
	return func(v *View) {
		v.onChange = fn
	}
}

// WithSession ties Run to s: when the session ends the channel is closed.
func WithSession(s Session) Option {
	return func(v *View) {
		v.session = s
	}
}

func NewView(userID, aiResponderID int, fetcher HistoryFetcher, log logrus.FieldLogger, opts ...Option) *View {
	v := &View{
		router:  Router{UserID: userID, AIResponderID: aiResponderID},
		store:   NewStore(),
		groups:  []models.Group{},
		fetcher: fetcher,
		log:     log.WithField("component", "chat_view"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	v.seq++
	s := Snapshot{
		seq:      v.seq,
		Messages: v.store.Snapshot(),
		Groups:   make([]models.Group, len(v.groups)),
	}
	copy(s.Groups, v.groups)
	if v.selected != nil {
		sel := *v.selected
		s.Selected = &sel
	}
	return s
}

// notify delivers s unless a newer snapshot already went out. Snapshots are
// taken under mu but delivered after it is released, so callers from
// different goroutines may arrive out of order.
func (v *View) notify(s Snapshot) {
	if v.onChange == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if s.seq <= v.delivered {
		return
	}
	v.delivered = s.seq
	v.onChange(s)
}

// Receive routes one inbound message against the current selection and
// appends it when accepted.
func (v *View) Receive(kind Kind, msg models.Message) Match {
	v.mu.Lock()
	match := v.router.Classify(kind, msg, v.selected)
	if !match.Accepted() {
		v.mu.Unlock()
		v.log.WithFields(logrus.Fields{"kind": kind, "sender_id": msg.SenderID}).Debug("message ignored")
		return match
	}
	v.store.Append(msg)
	s := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(s)
	return match
}

// Dispatch decodes a realtime envelope and applies it. Unknown or malformed
// events are dropped.
func (v *View) Dispatch(ev models.Event) {
	switch ev.Event {
	case models.EventNewMessage, models.EventNewGroupMessage:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			v.log.WithError(err).WithField("event", ev.Event).Debug("malformed message event")
			return
		}
		kind := KindDirect
		if ev.Event == models.EventNewGroupMessage {
			kind = KindGroup
		}
		v.Receive(kind, msg)
	case models.EventGroupUpdated:
		var patch models.GroupPatch
		if err := json.Unmarshal(ev.Data, &patch); err != nil {
			v.log.WithError(err).Debug("malformed group update")
			return
		}
		v.ApplyGroupUpdate(patch)
	case models.EventGroupDeleted:
		var deleted models.GroupDeleted
		if err := json.Unmarshal(ev.Data, &deleted); err != nil {
			v.log.WithError(err).Debug("malformed group delete")
			return
		}
		v.ApplyGroupDelete(deleted.ID)
	case models.EventError:
		var payload models.ErrorPayload
		_ = json.Unmarshal(ev.Data, &payload)
		v.log.WithField("message", payload.Message).Warn("server reported an error")
	default:
		v.log.WithField("event", ev.Event).Debug("unknown event")
	}
}

// Run opens the realtime channel and keeps it until ctx is cancelled, the
// connection drops or the session ends. The channel is closed on every
// return path.
func (v *View) Run(ctx context.Context, dial Dialer) error {
	var sessionDone <-chan struct{}
	if v.session != nil {
		sessionDone = v.session.Done()
		select {
		case <-sessionDone:
			return ErrSessionLost
		default:
		}
	}

	conn, err := dial(ctx, v.Dispatch)
	if err != nil {
		return errors.Wrap(err, "open realtime channel")
	}
	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.conn = nil
		v.mu.Unlock()
		if err := conn.Close(); err != nil {
			v.log.WithError(err).Debug("close realtime channel")
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-sessionDone:
		v.log.Info("session ended, closing realtime channel")
		return ErrSessionLost
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			return errors.Wrap(err, "realtime channel dropped")
		}
		return nil
	}
}

// Send posts content to the selected conversation over the realtime channel.
func (v *View) Send(ctx context.Context, content string) error {
	v.mu.Lock()
	conn, selected := v.conn, v.selected
	v.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if selected == nil {
		return ErrNoSelection
	}
	if selected.IsGroup() {
		return conn.Send(ctx, models.EventSendGroupMessage, models.SendGroupMessagePayload{
			GroupID: selected.ID,
			Content: content,
		})
	}
	return conn.Send(ctx, models.EventSendMessage, models.SendMessagePayload{
		ReceiverID: selected.ID,
		Content:    content,
	})
}
