// Package wsbridge carries commands and events over a WebSocket. The host
// mounts a Server as an http.Handler; the remote peer connects with Dial.
package wsbridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/photovoltex/interop/lib/bridge"
)

// Server is the host end. It implements bridge.Emitter and http.Handler.
type Server struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	invoker bridge.Invoker
	peers   map[*peer]struct{}
	closed  bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// NewServer returns a server with no host attached.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		peers:  make(map[*peer]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve attaches the host's dispatcher.
func (s *Server) Serve(inv bridge.Invoker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoker = inv
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	events map[string]int
}

func (p *peer) write(f frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) listening(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[event] > 0
}

// ServeHTTP upgrades the connection and serves it until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	p := &peer{conn: conn, events: make(map[string]int)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		f, err := decodeFrame(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		switch f.Kind {
		case kindInvoke:
			go s.invoke(ctx, p, f)
		case kindListen:
			p.mu.Lock()
			p.events[f.Name]++
			p.mu.Unlock()
		case kindUnlisten:
			p.mu.Lock()
			if p.events[f.Name] > 1 {
				p.events[f.Name]--
			} else {
				delete(p.events, f.Name)
			}
			p.mu.Unlock()
		default:
			s.logger.Warn("dropping frame of unknown kind", "kind", f.Kind)
		}
	}
}

func (s *Server) invoke(ctx context.Context, p *peer, f frame) {
	s.mu.RLock()
	inv := s.invoker
	s.mu.RUnlock()

	reply := frame{Kind: kindReply, ID: f.ID}
	if inv == nil {
		reply.Error = "no host attached"
	} else {
		data, err := inv.Invoke(ctx, f.Name, f.Data)
		switch rej, ok := bridge.AsRejection(err); {
		case ok:
			reply.Rejected = true
			reply.Data = rej.Payload
		case err != nil:
			reply.Error = err.Error()
		default:
			reply.Data = data
		}
	}
	if err := p.write(reply); err != nil {
		s.logger.Debug("reply not delivered", "command", f.Name, "error", err)
	}
}

// Emit sends envelope to every connected peer listening for event.
func (s *Server) Emit(event string, envelope []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return bridge.ErrClosed
	}
	var errs []error
	for p := range s.peers {
		if !p.listening(event) {
			continue
		}
		if err := p.write(frame{Kind: kindEvent, Name: event, Data: envelope}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Listeners counts peers listening for event.
func (s *Server) Listeners(event string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for p := range s.peers {
		if p.listening(event) {
			n++
		}
	}
	return n
}

// Close disconnects every peer.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for p := range s.peers {
		p.writeMu.Lock()
		_ = p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "host closing"))
		p.writeMu.Unlock()
		p.conn.Close()
	}
	return nil
}
