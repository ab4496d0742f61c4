// Package push maintains the per-user notification stream. The scan core
// only consumes scan_result messages; there is no auto-reconnect — the page
// rebuilds the channel on next mount.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"smartbin-scan/internal/event"
	"smartbin-scan/internal/model"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosed       State = "closed"
)

// Handler receives each scan_result pushed by the backend.
type Handler func(model.ScanResult)

type Channel struct {
	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	last    *model.PushMessage
	handler Handler
	bus     event.Bus
	done    chan struct{}
}

// Dial opens the push stream, carrying the bearer credential, and starts the
// read pump. The returned Channel is open until the peer closes it or Close
// is called.
func Dial(ctx context.Context, wsURL string, credential string, handler Handler, bus event.Bus) (*Channel, error) {
	c := &Channel{
		state:   StateConnecting,
		handler: handler,
		bus:     bus,
		done:    make(chan struct{}),
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.setState(StateClosed)
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	if bus != nil {
		bus.Publish(event.TypePushOpen, wsURL)
	}

	go c.readPump()
	return c, nil
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastMessage reports the most recent message of any type, for diagnostics.
func (c *Channel) LastMessage() *model.PushMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return nil
	}

	copied := *c.last
	return &copied
}

// Close tears the channel down. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	already := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	if !already && c.bus != nil {
		c.bus.Publish(event.TypePushClosed, nil)
	}

	return nil
}

// Done is closed when the read pump exits.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) readPump() {
	defer close(c.done)
	defer c.Close()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg model.PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("push: dropping unparseable message", "error", err)
			continue
		}

		c.mu.Lock()
		c.last = &msg
		c.mu.Unlock()

		if msg.Type != model.PushTypeScanResult {
			continue
		}

		var result model.ScanResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			slog.Debug("push: dropping malformed scan_result", "error", err)
			continue
		}

		if c.handler != nil {
			c.handler(result)
		}
	}
}
