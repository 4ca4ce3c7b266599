package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream is a bidirectional message stream to the realtime model.
// Send is safe for concurrent use; Receive must be called from a
// single goroutine.
type Stream interface {
	Send(msg *clientMessage) error
	Receive() (*serverMessage, error)
	Close() error
}

// Dialer opens a Stream to the given endpoint. Sessions take a Dialer
// so tests can substitute an in-memory stream.
type Dialer func(ctx context.Context, endpoint string) (Stream, error)

const closeWriteTimeout = time.Second

// webSocketStream wraps a websocket connection. The write mutex exists
// because gorilla/websocket permits only one concurrent writer and both
// the capture loop and the receive loop send frames.
type webSocketStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialWebSocket opens a websocket stream to the realtime endpoint.
func DialWebSocket(ctx context.Context, endpoint string) (Stream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}
	return &webSocketStream{conn: conn}, nil
}

func (w *webSocketStream) Send(msg *clientMessage) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteJSON(msg)
}

func (w *webSocketStream) Receive() (*serverMessage, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse server message: %w", err)
	}
	return &msg, nil
}

func (w *webSocketStream) Close() error {
	// Best-effort close handshake before dropping the connection.
	w.writeMu.Lock()
	deadline := time.Now().Add(closeWriteTimeout)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	w.writeMu.Unlock()

	return w.conn.Close()
}

// withAPIKey appends the API key as a query parameter, the auth scheme
// the realtime endpoint expects.
func withAPIKey(endpoint, apiKey string) string {
	if apiKey == "" {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}
