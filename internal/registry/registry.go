// Package registry tracks which commands a generation pass registered, which
// of them were collected into dispatch tables, and combines collected
// namespaces into one table.
//
// A Registry is owned by a single generation pass and is not safe for
// concurrent use.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Combine error codes (E130-E139)
const (
	ErrDangling      = "E130" // registered but never collected
	ErrDuplicateWire = "E131" // two combined namespaces share a command name
	ErrEmpty         = "E132" // nothing would be registered
)

// CombineError is a fatal combine failure.
type CombineError struct {
	Code    string
	Message string
	Names   []string
}

func (e *CombineError) Error() string {
	if len(e.Names) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, strings.Join(e.Names, ", "))
}

// Registry is the explicit replacement for process-wide command lists.
type Registry struct {
	working map[string]struct{}
	union   map[string]struct{}
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for combine warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		working: make(map[string]struct{}),
		union:   make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds name to the working set. Registering a name twice is a no-op.
func (r *Registry) Register(name string) {
	r.working[name] = struct{}{}
}

// Pending returns the registered but not yet collected names, sorted.
func (r *Registry) Pending() []string {
	return sortedKeys(r.working)
}

// Collect returns the working set as a sorted dispatch list, records it in
// the union under namespace ("ns::name", or the bare name when namespace is
// empty) and clears the working set.
func (r *Registry) Collect(namespace string) []string {
	names := sortedKeys(r.working)
	for _, name := range names {
		r.union[qualify(namespace, name)] = struct{}{}
	}
	clear(r.working)
	return names
}

// Union returns every collected qualified name, sorted.
func (r *Registry) Union() []string {
	return sortedKeys(r.union)
}

// Restore reloads state persisted by an earlier pass.
func (r *Registry) Restore(union, pending []string) {
	for _, name := range union {
		r.union[name] = struct{}{}
	}
	for _, name := range pending {
		r.working[name] = struct{}{}
	}
}

// Combined is the result of combining collected namespaces.
type Combined struct {
	// Namespaces in the order they were requested.
	Namespaces []string
	// Commands maps each namespace to its sorted command names.
	Commands map[string][]string
	// Names is the sorted dispatch list of the combined table.
	Names []string
	// Omitted lists collected qualified names left out of the table.
	Omitted []string
}

// Combine builds the dispatch list for the requested namespaces.
//
// It fails when registrations are still pending, when the requested
// namespaces contribute no commands, or when two of them declare the same
// command name. Collected names outside the requested namespaces are logged
// as a warning and reported in Omitted.
func (r *Registry) Combine(namespaces []string) (*Combined, error) {
	if pending := r.Pending(); len(pending) > 0 {
		return nil, &CombineError{
			Code:    ErrDangling,
			Message: "commands were registered but never collected",
			Names:   pending,
		}
	}

	wanted := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		wanted[ns] = true
	}

	out := &Combined{
		Namespaces: slices.Clone(namespaces),
		Commands:   make(map[string][]string),
	}
	owner := make(map[string]string)
	var duplicates []string

	for _, qualified := range r.Union() {
		ns, name := split(qualified)
		if ns == "" || !wanted[ns] {
			out.Omitted = append(out.Omitted, qualified)
			continue
		}
		if prev, ok := owner[name]; ok {
			duplicates = append(duplicates, fmt.Sprintf("%s (%s, %s)", name, prev, ns))
			continue
		}
		owner[name] = ns
		out.Commands[ns] = append(out.Commands[ns], name)
		out.Names = append(out.Names, name)
	}

	if len(duplicates) > 0 {
		return nil, &CombineError{
			Code:    ErrDuplicateWire,
			Message: "command names collide across namespaces",
			Names:   duplicates,
		}
	}
	if len(out.Names) == 0 {
		return nil, &CombineError{
			Code:    ErrEmpty,
			Message: "no commands will be registered",
		}
	}

	slices.Sort(out.Names)
	for _, ns := range namespaces {
		if len(out.Commands[ns]) == 0 {
			r.logger.Warn("namespace has no collected commands", "namespace", ns)
		}
	}
	if len(out.Omitted) > 0 {
		r.logger.Warn("collected commands left out of the combined table",
			"commands", strings.Join(out.Omitted, ", "))
	}
	return out, nil
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "::" + name
}

func split(qualified string) (namespace, name string) {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[:i], qualified[i+2:]
	}
	return "", qualified
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
