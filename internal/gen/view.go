package gen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/photovoltex/interop/internal/compiler"
	"github.com/photovoltex/interop/internal/ir"
	"github.com/photovoltex/interop/internal/naming"
)

type importSpec struct {
	Name string
	Path string
}

type fileData struct {
	Package string
	Imports []importSpec
	NS      *namespaceView
}

type namespaceView struct {
	Name       string
	Label      string
	Collect    bool
	Commands   []commandView
	Aggregates []aggregateView
	Dispatch   []string

	imports []importSpec
}

type commandView struct {
	ir.CommandDescriptor

	// ArgsType is the argument aggregate type, empty without wire params.
	ArgsType string
	Wire     []paramView
	States   []paramView

	// HostParams and HostResult form the Handlers method signature.
	HostParams  string
	HostResult  string
	HandlerCall string

	// RemoteParams follows ctx (or stands alone for fire-and-forget).
	RemoteParams string
	ArgsExpr     string

	// Bootstrap commands only.
	BootstrapTag      string
	BootstrapField    string
	BootstrapStrategy string
}

// Reply names the shape of the host reply: none, value or fallible.
func (c commandView) Reply() string {
	switch c.Category {
	case ir.AwaitValue:
		return "value"
	case ir.AwaitFallible:
		return "fallible"
	}
	return "none"
}

// Fire reports whether the remote stub returns without waiting.
func (c commandView) Fire() bool {
	return !c.Category.Awaits()
}

type paramView struct {
	ir.Param
	Local    string
	Strategy string // host strategy function, state injection only
}

type aggregateView struct {
	ir.AggregateDescriptor
	StrategyFunc string
}

type combinedNamespace struct {
	Name    string
	Package string
	Field   string
}

type combinedData struct {
	Package    string
	Imports    []importSpec
	Namespaces []combinedNamespace
	Names      []string
}

// reservedLocals are identifiers the templates declare inside generated
// functions.
var reservedLocals = map[string]bool{
	"ctx": true, "r": true, "h": true, "d": true, "call": true, "args": true,
	"err": true, "v": true, "s": true, "p": true, "em": true, "cb": true,
	"initial": true, "onChange": true, "fetch": true,
	"context": true, "host": true, "remote": true, "event": true,
}

func localName(p ir.Param) string {
	if reservedLocals[p.GoName] {
		return p.GoName + "Arg"
	}
	return p.GoName
}

var strategyFuncs = map[ir.Strategy]string{
	ir.StrategyDirect:   "Directly",
	ir.StrategyOptional: "Optionally",
	ir.StrategyMutex:    "Mutexed",
	ir.StrategyRWLock:   "ReadWrite",
}

func strategyFunc(s ir.Strategy) (string, error) {
	if s == "" {
		s = ir.StrategyDirect
	}
	fn, ok := strategyFuncs[s]
	if !ok {
		return "", fmt.Errorf("unknown strategy %q", s)
	}
	return fn, nil
}

func exportedName(s string) string {
	return naming.Pascal(s)
}

func newNamespaceView(ns *ir.NamespaceDescriptor, dispatch []string) (*namespaceView, error) {
	view := &namespaceView{
		Name:     ns.Name,
		Label:    ns.Name,
		Collect:  ns.Collect,
		Dispatch: dispatch,
	}
	if view.Label == "" {
		view.Label = ns.Package
	}

	idents := newIdentSet(ns)
	qualifiers := make(map[string]bool)
	useType := func(typ string) {
		shape, err := compiler.ParseType(typ)
		if err != nil {
			return
		}
		for _, q := range shape.Packages {
			qualifiers[q] = true
		}
	}

	for _, agg := range ns.Aggregates {
		av := aggregateView{AggregateDescriptor: agg}
		if agg.Managed {
			fn, err := strategyFunc(agg.Strategy)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", agg.Name, err)
			}
			av.StrategyFunc = fn
		}
		idents.add(agg.Name, "aggregate "+agg.Name)
		for _, f := range agg.Fields {
			useType(f.Type)
			idents.add(f.Tag, "field tag "+f.Tag)
			idents.method("Listen"+f.Tag, "listen method of "+f.Event)
			idents.method("Bind"+f.Tag, "bind method of "+f.Event)
		}
		view.Aggregates = append(view.Aggregates, av)
	}

	for _, cmd := range ns.Commands {
		cv, err := newCommandView(ns, cmd)
		if err != nil {
			return nil, fmt.Errorf("command %s: %w", cmd.QualifiedName(), err)
		}
		for _, p := range cmd.Params {
			useType(p.Type)
		}
		for _, p := range cmd.Injected {
			if p.Inject == ir.InjectState {
				useType(p.Type)
			}
		}
		for _, t := range []string{cmd.Returns, cmd.Ok, cmd.Err} {
			if t != "" {
				useType(t)
			}
		}
		idents.add("Handle"+cmd.GoName, "handler of "+cmd.Name)
		idents.method(cmd.GoName, "stub of "+cmd.Name)
		if cv.ArgsType != "" {
			idents.add(cv.ArgsType, "arguments of "+cmd.Name)
		}
		view.Commands = append(view.Commands, cv)
	}

	if err := idents.err(); err != nil {
		return nil, err
	}

	view.imports = []importSpec{
		{Path: "context"},
		{Path: LibPath + "/event"},
		{Path: LibPath + "/host"},
		{Path: LibPath + "/remote"},
	}
	for q := range qualifiers {
		if p, ok := ns.Imports[q]; ok {
			view.imports = append(view.imports, importSpec{Name: q, Path: p})
			continue
		}
		if p, ok := compiler.StdlibImport(q); ok {
			spec := importSpec{Path: p}
			if path := p[strings.LastIndex(p, "/")+1:]; path != q {
				spec.Name = q
			}
			view.imports = append(view.imports, spec)
			continue
		}
		return nil, fmt.Errorf("namespace %s: package %q is neither imported nor a known standard package", view.Label, q)
	}
	slices.SortFunc(view.imports, func(a, b importSpec) int {
		return strings.Compare(a.Path, b.Path)
	})
	return view, nil
}

func newCommandView(ns *ir.NamespaceDescriptor, cmd ir.CommandDescriptor) (commandView, error) {
	cv := commandView{CommandDescriptor: cmd}

	if cmd.Bootstrap != nil {
		agg := ns.Aggregate(cmd.Bootstrap.Aggregate)
		if agg == nil {
			return cv, fmt.Errorf("bootstrap aggregate %s not declared", cmd.Bootstrap.Aggregate)
		}
		for _, f := range agg.Fields {
			if f.Field == cmd.Bootstrap.Field {
				cv.BootstrapTag = f.Tag
				cv.BootstrapField = f.GoName
			}
		}
		if cv.BootstrapTag == "" {
			return cv, fmt.Errorf("bootstrap field %s.%s not declared", agg.Name, cmd.Bootstrap.Field)
		}
		fn, err := strategyFunc(cmd.Bootstrap.Strategy)
		if err != nil {
			return cv, err
		}
		cv.BootstrapStrategy = fn
		return cv, nil
	}

	hostParams := []string{"ctx context.Context"}
	callArgs := []string{"ctx"}
	var remoteParams, fields []string

	for _, p := range cmd.Params {
		pv := paramView{Param: p, Local: localName(p)}
		cv.Wire = append(cv.Wire, pv)
		hostParams = append(hostParams, pv.Local+" "+p.Type)
		callArgs = append(callArgs, "args."+p.Field)
		remoteParams = append(remoteParams, pv.Local+" "+p.Type)
		fields = append(fields, p.Field+": "+pv.Local)
	}
	for _, p := range cmd.Injected {
		pv := paramView{Param: p, Local: localName(p)}
		switch p.Inject {
		case ir.InjectApp:
			hostParams = append(hostParams, pv.Local+" *host.App")
			callArgs = append(callArgs, "call.App()")
		case ir.InjectState:
			fn, err := strategyFunc(p.Strategy)
			if err != nil {
				return cv, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
			pv.Strategy = fn
			cv.States = append(cv.States, pv)
			hostParams = append(hostParams, fmt.Sprintf("%s host.State[%s]", pv.Local, p.Type))
			callArgs = append(callArgs, pv.Local)
		default:
			return cv, fmt.Errorf("parameter %s: unknown injection %q", p.Name, p.Inject)
		}
	}

	if len(cmd.Params) > 0 {
		cv.ArgsType = naming.Camel(cmd.Name) + "Args"
		cv.ArgsExpr = cv.ArgsType + "{" + strings.Join(fields, ", ") + "}"
	} else {
		cv.ArgsExpr = "nil"
	}

	cv.HostParams = strings.Join(hostParams, ", ")
	cv.HandlerCall = "h." + cmd.GoName + "(" + strings.Join(callArgs, ", ") + ")"
	cv.RemoteParams = strings.Join(remoteParams, ", ")

	switch cmd.Category {
	case ir.AwaitValue:
		cv.HostResult = "(" + cmd.Returns + ", error)"
	case ir.AwaitFallible:
		cv.HostResult = "(" + cmd.Ok + ", error)"
	default:
		cv.HostResult = "error"
	}
	return cv, nil
}

// identSet detects generated identifiers that would collide.
type identSet struct {
	pkg     map[string]string
	methods map[string]string
	dups    []string
}

func newIdentSet(ns *ir.NamespaceDescriptor) *identSet {
	s := &identSet{
		pkg:     make(map[string]string),
		methods: make(map[string]string),
	}
	for _, name := range []string{"Handlers", "Register", "Commands", "Remote", "NewRemote"} {
		s.pkg[name] = "generated " + name
	}
	if ns.Name == "" {
		for _, name := range []string{"AllHandlers", "RegisterAll", "AllCommands"} {
			s.pkg[name] = "generated " + name
		}
	}
	for alias := range ns.Imports {
		s.pkg[alias] = "import " + alias
	}
	return s
}

func (s *identSet) add(name, what string) {
	if prev, ok := s.pkg[name]; ok {
		s.dups = append(s.dups, fmt.Sprintf("%s (%s, %s)", name, prev, what))
		return
	}
	s.pkg[name] = what
}

func (s *identSet) method(name, what string) {
	if prev, ok := s.methods[name]; ok {
		s.dups = append(s.dups, fmt.Sprintf("Remote.%s (%s, %s)", name, prev, what))
		return
	}
	s.methods[name] = what
}

func (s *identSet) err() error {
	if len(s.dups) == 0 {
		return nil
	}
	return fmt.Errorf("generated identifiers collide: %s", strings.Join(s.dups, "; "))
}
