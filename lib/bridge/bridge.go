// Package bridge defines the transport contract between the host and the
// remote peer: invoke a named command with encoded arguments, listen for
// named events, emit events.
//
// Implementations live in subpackages: memory (in-process), wsbridge
// (WebSocket) and jsonrpc (HTTP, invoke only).
package bridge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Invoker sends one command to the host and returns its encoded reply.
//
// A host-side rejection is reported as *Rejection. Any other error means the
// command never produced a reply.
type Invoker interface {
	Invoke(ctx context.Context, command string, args []byte) ([]byte, error)
}

// Detach cancels a listen registration.
type Detach func()

// Subscriber registers callbacks for named events. fn receives the encoded
// envelope of each event in delivery order.
type Subscriber interface {
	Listen(ctx context.Context, event string, fn func(envelope []byte)) (Detach, error)
}

// Emitter publishes encoded event envelopes from the host.
type Emitter interface {
	Emit(event string, envelope []byte) error
}

// Remote is the remote peer's view of a bridge.
type Remote interface {
	Invoker
	Subscriber
}

// ErrClosed is returned by operations on a closed bridge.
var ErrClosed = errors.New("bridge: closed")

// Rejection is the host refusing a command. Payload is the encoded error
// value.
type Rejection struct {
	Payload []byte
}

func (r *Rejection) Error() string {
	if utf8.Valid(r.Payload) {
		return fmt.Sprintf("command rejected: %s", r.Payload)
	}
	return fmt.Sprintf("command rejected (%d bytes)", len(r.Payload))
}

// Reject wraps an encoded error payload.
func Reject(payload []byte) error {
	return &Rejection{Payload: payload}
}

// AsRejection unwraps a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

var notFoundPattern = regexp.MustCompile(`command (\w+) not found`)

// NotFound is the diagnostic a host emits for a command missing from its
// dispatch table.
func NotFound(command string) string {
	return fmt.Sprintf("command %s not found", command)
}

// MatchNotFound reports the missing command when msg is the not-registered
// diagnostic.
func MatchNotFound(msg string) (string, bool) {
	m := notFoundPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	return m[1], true
}
