package ir

// Category is the invocation category of a command. The set is closed.
type Category string

const (
	// FireAndForget sends the command and does not wait for the host.
	FireAndForget Category = "fire_and_forget"
	// AwaitEmpty waits for completion and discards the reply.
	AwaitEmpty Category = "await_empty"
	// AwaitValue waits and decodes a value of the declared type.
	AwaitValue Category = "await_value"
	// AwaitFallible waits and decodes either a value or a typed error.
	AwaitFallible Category = "await_fallible"
)

// Awaits reports whether the remote caller waits for the host's reply.
func (c Category) Awaits() bool {
	return c != FireAndForget
}

// Valid reports whether c is one of the four categories.
func (c Category) Valid() bool {
	switch c {
	case FireAndForget, AwaitEmpty, AwaitValue, AwaitFallible:
		return true
	}
	return false
}

// Injection marks a parameter the host supplies itself.
type Injection string

const (
	InjectNone  Injection = ""
	InjectApp   Injection = "app"
	InjectState Injection = "state"
)

// Strategy names how a host-managed aggregate is stored and locked.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyOptional Strategy = "optional"
	StrategyMutex    Strategy = "mutex"
	StrategyRWLock   Strategy = "rwlock"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyDirect, StrategyOptional, StrategyMutex, StrategyRWLock:
		return true
	}
	return false
}

// Param is one declared command parameter.
type Param struct {
	Name     string    `json:"name"`      // declared label
	GoName   string    `json:"go_name"`   // camelCase local name
	WireName string    `json:"wire_name"` // snake_case aggregate key
	Field    string    `json:"field"`     // PascalCase aggregate field
	Type     string    `json:"type"`      // Go type expression
	Ref      bool      `json:"ref,omitempty"`
	Inject   Injection `json:"inject,omitempty"`
	Strategy Strategy  `json:"strategy,omitempty"` // state injection only
}

// CommandDescriptor is the normalized form of one declared command.
type CommandDescriptor struct {
	Name      string   `json:"name"`    // wire name, the dispatch key
	GoName    string   `json:"go_name"` // exported method name
	Namespace string   `json:"namespace,omitempty"`
	Params    []Param  `json:"params"`   // wire parameters in declaration order
	Injected  []Param  `json:"injected"` // host-only parameters in declaration order
	Category  Category `json:"category"`
	Returns   string   `json:"returns,omitempty"` // AwaitValue
	Ok        string   `json:"ok,omitempty"`      // AwaitFallible
	Err       string   `json:"err,omitempty"`     // AwaitFallible
	Borrows   bool     `json:"borrows,omitempty"`
	Doc       string   `json:"doc,omitempty"`

	// Bootstrap is set on read commands derived from a managed aggregate field.
	Bootstrap *FieldRef `json:"bootstrap,omitempty"`
}

// QualifiedName is the registry key: "ns::name", or name when unnamespaced.
func (c CommandDescriptor) QualifiedName() string {
	return Qualify(c.Namespace, c.Name)
}

// ValueType is the Go type a successful reply decodes into, or "" for the
// empty categories.
func (c CommandDescriptor) ValueType() string {
	switch c.Category {
	case AwaitValue:
		return c.Returns
	case AwaitFallible:
		return c.Ok
	}
	return ""
}

// FieldRef points at an aggregate field.
type FieldRef struct {
	Aggregate string   `json:"aggregate"`
	Field     string   `json:"field"`
	Strategy  Strategy `json:"strategy"`
}

// FieldDescriptor describes one field of a synchronized aggregate.
type FieldDescriptor struct {
	Parent    string `json:"parent"`
	Field     string `json:"field"`   // declared label, also the wire key
	GoName    string `json:"go_name"` // PascalCase struct field
	Type      string `json:"type"`
	Event     string `json:"event"` // "<Parent>::<GoName>"
	Tag       string `json:"tag"`   // tag type name
	Bootstrap string `json:"bootstrap,omitempty"`
}

// AggregateDescriptor describes a host-held aggregate mirrored field by field.
type AggregateDescriptor struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Fields    []FieldDescriptor `json:"fields"`
	Managed   bool              `json:"managed,omitempty"`
	Strategy  Strategy          `json:"strategy,omitempty"`
	TagPrefix string            `json:"tag_prefix,omitempty"`
	Doc       string            `json:"doc,omitempty"`
}

// NamespaceDescriptor groups the commands and aggregates generated into one
// package.
type NamespaceDescriptor struct {
	Name       string                `json:"name"` // empty for the root namespace
	Package    string                `json:"package"`
	Imports    map[string]string     `json:"imports,omitempty"`
	Commands   []CommandDescriptor   `json:"commands"`
	Aggregates []AggregateDescriptor `json:"aggregates"`
	Collect    bool                  `json:"collect"`
}

// Aggregate returns the aggregate named name, or nil.
func (n *NamespaceDescriptor) Aggregate(name string) *AggregateDescriptor {
	for i := range n.Aggregates {
		if n.Aggregates[i].Name == name {
			return &n.Aggregates[i]
		}
	}
	return nil
}

// Declaration is the compiled content of one declaration directory.
type Declaration struct {
	Namespaces []NamespaceDescriptor `json:"namespaces"`
	Combine    []string              `json:"combine,omitempty"`
}

// Qualify joins a namespace and a command name the way the registry stores
// them.
func Qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "::" + name
}

// EventName returns the canonical event name of a field.
func EventName(parent, goField string) string {
	return parent + "::" + goField
}
