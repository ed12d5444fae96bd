package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"birthday-chat-service/internal/models"
)

// ConnInfo carries connection metadata for observability events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client wraps a websocket connection with its authenticated identity. Writes
// are serialized through a mutex because gorilla connections allow only one
// concurrent writer.
type Client struct {
	conn   *websocket.Conn
	info   ConnInfo
	userID int64

	writeMu sync.Mutex
	sendFn  func(models.ServerEvent) error
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	c := &Client{conn: conn, info: info, userID: info.UserID}
	c.sendFn = c.writeJSON
	return c
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() int64 { return c.userID }

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo { return c.info }

// Send writes one event frame to the client.
func (c *Client) Send(event models.ServerEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sendFn(event)
}

func (c *Client) writeJSON(event models.ServerEvent) error {
	return c.conn.WriteJSON(event)
}

// SendError reports a scoped failure back to this connection only.
func (c *Client) SendError(code, message string) {
	_ = c.Send(models.NewErrorEvent(code, message))
}

// Close tears the underlying connection down.
func (c *Client) Close() error { return c.conn.Close() }

func newConnID() string {
	return uuid.NewString()
}
