package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// gorillaDialer returns the production Dialer backed by a WebSocket.
func gorillaDialer(cfg Config) Dialer {
	return func(ctx context.Context, url string) (Transport, error) {
		d := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		conn, resp, err := d.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			return nil, err
		}
		return &wsTransport{conn: conn, writeTimeout: cfg.WriteTimeout}, nil
	}
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}
