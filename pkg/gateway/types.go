package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Progress event names broadcast to observers.
const (
	EventToolCallStarted  = "tool_call.started"
	EventToolCallFinished = "tool_call.finished"
	EventServerShutdown   = "server.shutdown"
)

// ProgressEvent is one server-initiated message to connected observers.
type ProgressEvent struct {
	Event     string      `json:"event"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// AuthChallenge is the first message sent to a freshly connected client.
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse is the client's reply to a challenge.
type AuthResponse struct {
	Signature string `json:"signature"`
}

// AuthResult tells the client whether authentication succeeded.
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client is one connected observer. Writes go through WriteJSON so that the
// broadcaster and the keepalive pinger never interleave frames.
type Client struct {
	ID            string
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	AuthAttempts  int
	ConnectedAt   time.Time
	LastActivity  time.Time
	IPAddress     string

	writeMu sync.Mutex
}

// WriteJSON marshals v to the connection under the client's write lock.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(v)
}

// Ping sends a control ping under the client's write lock.
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ClientInfo is the read-only view of a connected client.
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastActivity  time.Time `json:"last_activity"`
	IPAddress     string    `json:"ip_address"`
}
