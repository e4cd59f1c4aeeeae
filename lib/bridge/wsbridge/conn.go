package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/photovoltex/interop/lib/bridge"
)

// eventBuffer bounds the events held between the read loop and callbacks.
const eventBuffer = 1024

// Conn is the remote end. It implements bridge.Remote.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan frame
	subs    map[string]map[uint64]func([]byte)
	closed  bool

	events chan frame
	done   chan struct{}
	wg     sync.WaitGroup
}

// DialOption configures Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	dialer *websocket.Dialer
	header http.Header
	logger *slog.Logger
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) DialOption {
	return func(o *dialOptions) {
		o.dialer = d
	}
}

// WithHeader adds request headers to the handshake.
func WithHeader(h http.Header) DialOption {
	return func(o *dialOptions) {
		o.header = h
	}
}

// WithLogger sets the connection logger.
func WithLogger(l *slog.Logger) DialOption {
	return func(o *dialOptions) {
		o.logger = l
	}
}

// Dial connects to a Server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...DialOption) (*Conn, error) {
	o := dialOptions{dialer: websocket.DefaultDialer, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ws, _, err := o.dialer.DialContext(ctx, url, o.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		ws:      ws,
		logger:  o.logger,
		pending: make(map[uint64]chan frame),
		subs:    make(map[string]map[uint64]func([]byte)),
		events:  make(chan frame, eventBuffer),
		done:    make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.deliverLoop()
	return c, nil
}

func (c *Conn) write(f frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Invoke sends a command and waits for its reply.
func (c *Conn) Invoke(ctx context.Context, command string, args []byte) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, bridge.ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(frame{Kind: kindInvoke, ID: id, Name: command, Data: args}); err != nil {
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	select {
	case reply := <-ch:
		switch {
		case reply.Rejected:
			return nil, bridge.Reject(reply.Data)
		case reply.Error != "":
			return nil, errors.New(reply.Error)
		default:
			return reply.Data, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, bridge.ErrClosed
	}
}

// Listen registers fn for event. Callbacks run on one delivery goroutine in
// arrival order.
func (c *Conn) Listen(ctx context.Context, event string, fn func([]byte)) (bridge.Detach, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, bridge.ErrClosed
	}
	c.nextID++
	id := c.nextID
	first := len(c.subs[event]) == 0
	if first {
		c.subs[event] = make(map[uint64]func([]byte))
	}
	c.subs[event][id] = fn
	c.mu.Unlock()

	if first {
		if err := c.write(frame{Kind: kindListen, Name: event}); err != nil {
			c.unsubscribe(event, id)
			return nil, fmt.Errorf("register %s: %w", event, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if c.unsubscribe(event, id) {
				if err := c.write(frame{Kind: kindUnlisten, Name: event}); err != nil {
					c.logger.Debug("unlisten not delivered", "event", event, "error", err)
				}
			}
		})
	}, nil
}

// unsubscribe removes a callback and reports whether it was the last one
// for event.
func (c *Conn) unsubscribe(event string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.subs[event]
	if !ok {
		return false
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(c.subs, event)
		return true
	}
	return false
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug("websocket read ended", "error", err)
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		switch f.Kind {
		case kindReply:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case kindEvent:
			select {
			case c.events <- f:
			case <-c.done:
				return
			}
		default:
			c.logger.Warn("dropping frame of unknown kind", "kind", f.Kind)
		}
	}
}

func (c *Conn) deliverLoop() {
	defer c.wg.Done()
	for {
		select {
		case f := <-c.events:
			c.mu.Lock()
			fns := make([]func([]byte), 0, len(c.subs[f.Name]))
			for _, fn := range c.subs[f.Name] {
				fns = append(fns, fn)
			}
			c.mu.Unlock()
			for _, fn := range fns {
				fn(f.Data)
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Close ends the connection and waits for its goroutines.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.ws.Close()
	c.shutdown()
	c.wg.Wait()
	return err
}

var _ bridge.Remote = (*Conn)(nil)
