package host

import (
	"reflect"
	"sync"

	"github.com/photovoltex/interop/lib/event"
)

// Strategy acquires the managed P and runs fn with it. write asks for
// exclusive access where the storage distinguishes readers from writers.
type Strategy[P any] func(a *App, write bool, fn func(*P) error) error

// Directly uses a *P managed as is. The caller synchronizes.
func Directly[P any](a *App, _ bool, fn func(*P) error) error {
	p, ok := Managed[*P](a)
	if !ok {
		return stateError[P](false)
	}
	return fn(p)
}

// Optionally uses an *Optional[P]; an empty Optional is an error.
func Optionally[P any](a *App, _ bool, fn func(*P) error) error {
	o, ok := Managed[*Optional[P]](a)
	if !ok {
		return stateError[P](false)
	}
	o.mu.RLock()
	p := o.v
	o.mu.RUnlock()
	if p == nil {
		return stateError[P](true)
	}
	return fn(p)
}

// Mutexed holds a *Locked[P]'s mutex for the duration of fn.
func Mutexed[P any](a *App, _ bool, fn func(*P) error) error {
	l, ok := Managed[*Locked[P]](a)
	if !ok {
		return stateError[P](false)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&l.v)
}

// ReadWrite holds a *RWLocked[P]'s read lock, or its write lock when write
// is set, for the duration of fn.
func ReadWrite[P any](a *App, write bool, fn func(*P) error) error {
	l, ok := Managed[*RWLocked[P]](a)
	if !ok {
		return stateError[P](false)
	}
	if write {
		l.mu.Lock()
		defer l.mu.Unlock()
	} else {
		l.mu.RLock()
		defer l.mu.RUnlock()
	}
	return fn(&l.v)
}

// Optional holds a P that may be absent.
type Optional[P any] struct {
	mu sync.RWMutex
	v  *P
}

// NewOptional returns an Optional holding v, which may be nil.
func NewOptional[P any](v *P) *Optional[P] {
	return &Optional[P]{v: v}
}

// Set replaces the held value.
func (o *Optional[P]) Set(v *P) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.v = v
}

// Clear drops the held value.
func (o *Optional[P]) Clear() {
	o.Set(nil)
}

// Locked is a P guarded by a mutex.
type Locked[P any] struct {
	mu sync.Mutex
	v  P
}

// NewLocked returns a Locked holding v.
func NewLocked[P any](v P) *Locked[P] {
	return &Locked[P]{v: v}
}

// RWLocked is a P guarded by a read/write mutex.
type RWLocked[P any] struct {
	mu sync.RWMutex
	v  P
}

// NewRWLocked returns an RWLocked holding v.
func NewRWLocked[P any](v P) *RWLocked[P] {
	return &RWLocked[P]{v: v}
}

// UseStrategy overrides the strategy generated code declared for P.
func UseStrategy[P any](a *App, s Strategy[P]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strategies[reflect.TypeFor[P]()] = s
}

func strategyFor[P any](a *App, def Strategy[P]) Strategy[P] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.strategies[reflect.TypeFor[P]()].(Strategy[P]); ok {
		return s
	}
	return def
}

// State is injected into handlers that declared a state parameter.
type State[P any] struct {
	app      *App
	strategy Strategy[P]
}

// StateOf resolves the strategy for P, falling back to def, and checks that
// the App manages P.
func StateOf[P any](a *App, def Strategy[P]) (State[P], error) {
	s := State[P]{app: a, strategy: strategyFor(a, def)}
	if err := s.strategy(a, false, func(*P) error { return nil }); err != nil {
		return State[P]{}, err
	}
	return s, nil
}

// Read runs fn with shared access.
func (s State[P]) Read(fn func(*P) error) error {
	return s.strategy(s.app, false, fn)
}

// Write runs fn with exclusive access.
func (s State[P]) Write(fn func(*P) error) error {
	return s.strategy(s.app, true, fn)
}

// App returns the App the state belongs to.
func (s State[P]) App() *App {
	return s.app
}

// Snapshot reads field f of the managed P together with the App's current
// event sequence. Both are taken while the strategy holds P.
func Snapshot[P, T any](a *App, def Strategy[P], f event.Field[P, T]) (event.Snapshot[T], error) {
	var snap event.Snapshot[T]
	err := strategyFor(a, def)(a, false, func(p *P) error {
		snap.Value = f.Get(p)
		snap.Seq = a.clock.Current()
		return nil
	})
	return snap, err
}
