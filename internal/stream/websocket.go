package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"intake-pipeline/backend/pkg/models"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the JSON text frame sent for every event.
type wsFrame struct {
	Event string             `json:"event"`
	Data  *models.StatusView `json:"data,omitempty"`
}

// WSConn sends events as JSON text frames over a websocket.
type WSConn struct {
	conn *websocket.Conn
}

// UpgradeWebSocket upgrades the request. The returned context is cancelled
// as soon as the peer closes the connection or a read fails.
func UpgradeWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) (*WSConn, context.Context, context.CancelFunc, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		// inbound frames are not part of the protocol; read only to observe close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return &WSConn{conn: conn}, ctx, cancel, nil
}

func (c *WSConn) Send(ev Event) error {
	data := ev.Data
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(wsFrame{Event: ev.Name, Data: &data})
}

// Heartbeat sends a data-less {"event":"heartbeat"} frame.
func (c *WSConn) Heartbeat() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(wsFrame{Event: "heartbeat"})
}

// Close sends a normal closure frame and releases the connection.
func (c *WSConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
