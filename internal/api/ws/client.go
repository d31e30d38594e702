package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/auth"
	"github.com/barotovamirbek/elowy-chat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var errUnexpectedEvent = errors.New("first frame must be authenticate")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	ID       string
	UserID   int
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	log      logrus.FieldLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int, username string) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		Hub:      hub,
		log:      hub.log.WithFields(logrus.Fields{"conn_id": id, "user_id": userID}),
	}
}

// ServeWS upgrades the request. The socket carries no credentials: the first
// frame must be an authenticate event with a valid token, sent within the
// auth timeout, or the connection is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	claims, err := h.authenticate(conn)
	if err != nil {
		h.log.WithError(err).Info("websocket authentication failed")
		writeError(conn, "authentication failed")
		_ = conn.Close()
		return
	}

	client := NewClient(h, conn, claims.UserID, claims.Username)
	h.Register(client)
	client.log.Info("client connected")

	go client.WritePump()
	go client.ReadPump()
}

func (h *Hub) authenticate(conn *websocket.Conn) (*auth.Claims, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.authTimeout)); err != nil {
		return nil, err
	}
	var ev models.Event
	if err := conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	if ev.Event != models.EventAuthenticate {
		return nil, errUnexpectedEvent
	}
	var payload models.AuthenticatePayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return nil, err
	}
	claims, err := h.tokens.Parse(payload.Token)
	if err != nil {
		return nil, err
	}
	return claims, conn.SetReadDeadline(time.Time{})
}

func writeError(conn *websocket.Conn, message string) {
	ev, err := models.NewEvent(models.EventError, models.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(ev)
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		close(c.Send)
		c.Conn.Close()
		c.log.Info("client disconnected")
	}()

	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("read failed")
			}
			break
		}

		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.sendError("malformed event")
			continue
		}
		c.Hub.handle(c, ev)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(message string) {
	ev, err := models.NewEvent(models.EventError, models.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
