// Package event synchronizes aggregate fields from the host to the remote
// peer, one named event per field.
//
// Generated code gives every field a zero-size tag type implementing Field.
// The host publishes with Emit and Update; the remote subscribes with Listen
// or keeps a replica with Bind.
package event

import (
	"fmt"
	"log/slog"
)

// Field identifies one field of aggregate P holding a T.
type Field[P, T any] interface {
	// EventName is "<Parent>::<Field>".
	EventName() string
	Get(p *P) T
	Set(p *P, v T)
}

// Emitter publishes one event. *host.App implements it.
type Emitter interface {
	EmitEvent(event string, payload any) error
}

// Envelope is the encoded form of an event. Seq is the host's emit sequence,
// zero when the host does not stamp events.
type Envelope[T any] struct {
	Payload T      `json:"payload"`
	Event   string `json:"event"`
	Seq     int64  `json:"seq,omitempty"`
}

// Snapshot is a field value read on the host together with the emit
// sequence current at the time of the read.
type Snapshot[T any] struct {
	Value T     `json:"value"`
	Seq   int64 `json:"seq"`
}

// Emit publishes the current value of f.
func Emit[P, T any](em Emitter, p *P, f Field[P, T]) error {
	if err := em.EmitEvent(f.EventName(), f.Get(p)); err != nil {
		return fmt.Errorf("emit %s: %w", f.EventName(), err)
	}
	slog.Debug("field emitted", "event", f.EventName())
	return nil
}

// Update assigns v to f and publishes it. The assignment stays in place when
// publishing fails.
func Update[P, T any](em Emitter, p *P, f Field[P, T], v T) error {
	f.Set(p, v)
	return Emit(em, p, f)
}
