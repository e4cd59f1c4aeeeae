package event

import (
	"context"
	"fmt"
	"sync"
)

// Fetch reads a field's current value from the host.
type Fetch[T any] func(ctx context.Context) (Snapshot[T], error)

// Replica is a remote copy of one host field kept current by its events.
type Replica[T any] struct {
	mu        sync.RWMutex
	value     T
	seq       int64
	buffering bool
	pending   []stamped[T]
	onChange  func(T)
	handle    *Handle
}

type stamped[T any] struct {
	value T
	seq   int64
}

// Bind creates a replica of f.
//
// With an initial value, or without fetch, the replica starts from initial
// (or the zero value) and follows events. Otherwise it subscribes first,
// holds incoming events while fetch runs, then applies the snapshot and
// replays only the held events stamped after it. Events without a sequence
// are always replayed.
//
// onChange, when set, runs after every applied event, and once with the
// bootstrapped value before Bind returns.
func Bind[P, T any](ctx context.Context, src Source, f Field[P, T], initial *T, fetch Fetch[T], onChange func(T)) (*Replica[T], error) {
	r := &Replica[T]{onChange: onChange}
	if initial != nil {
		r.value = *initial
	}
	bootstrap := initial == nil && fetch != nil
	r.buffering = bootstrap

	h, err := listen(ctx, src, f.EventName(), r.receive)
	if err != nil {
		return nil, err
	}
	r.handle = h
	if !bootstrap {
		return r, nil
	}

	snap, err := fetch(ctx)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("bootstrap %s: %w", f.EventName(), err)
	}

	r.mu.Lock()
	r.value, r.seq = snap.Value, snap.Seq
	for _, ev := range r.pending {
		if ev.seq == 0 || ev.seq > r.seq {
			r.value = ev.value
			if ev.seq != 0 {
				r.seq = ev.seq
			}
		}
	}
	r.pending = nil
	r.buffering = false
	value := r.value
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(value)
	}
	return r, nil
}

func (r *Replica[T]) receive(v T, seq int64) {
	r.mu.Lock()
	if r.buffering {
		r.pending = append(r.pending, stamped[T]{value: v, seq: seq})
		r.mu.Unlock()
		return
	}
	if seq != 0 && seq <= r.seq {
		r.mu.Unlock()
		return
	}
	r.value = v
	if seq != 0 {
		r.seq = seq
	}
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(v)
	}
}

// Value returns the replica's current value.
func (r *Replica[T]) Value() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Seq returns the sequence of the last applied snapshot or event.
func (r *Replica[T]) Seq() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Close stops following events.
func (r *Replica[T]) Close() {
	r.handle.Close()
}
