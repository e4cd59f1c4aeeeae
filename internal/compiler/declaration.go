package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/photovoltex/interop/internal/ir"
	"github.com/photovoltex/interop/internal/naming"
)

// CompileDeclaration parses a declaration value into descriptors.
//
// Commands and aggregates at the top level form the root namespace and are
// generated into rootPackage. Each entry under namespace: forms its own
// package. The value should be the whole declaration package, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`namespace: cmd: command: greet: { ... }`)
//	decl, err := CompileDeclaration(v, "api")
func CompileDeclaration(v cue.Value, rootPackage string) (*ir.Declaration, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &ir.Declaration{}

	root, err := compileNamespace("", rootPackage, v)
	if err != nil {
		return nil, err
	}
	if len(root.Commands) > 0 || len(root.Aggregates) > 0 {
		decl.Namespaces = append(decl.Namespaces, *root)
	}

	if nsVal := v.LookupPath(cue.ParsePath("namespace")); nsVal.Exists() {
		iter, err := nsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Label()
			ns, err := compileNamespace(name, PackageName(name), iter.Value())
			if err != nil {
				return nil, err
			}
			decl.Namespaces = append(decl.Namespaces, *ns)
		}
	}

	if combineVal := v.LookupPath(cue.ParsePath("combine")); combineVal.Exists() {
		list, err := combineVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			name, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			decl.Combine = append(decl.Combine, name)
		}
	}

	return decl, nil
}

// PackageName derives the Go package name of a namespace.
func PackageName(namespace string) string {
	return strings.ReplaceAll(naming.Snake(namespace), "_", "")
}

func compileNamespace(name, pkg string, v cue.Value) (*ir.NamespaceDescriptor, error) {
	ns := &ir.NamespaceDescriptor{
		Name:    name,
		Package: pkg,
		Collect: true,
	}

	if importsVal := v.LookupPath(cue.ParsePath("imports")); importsVal.Exists() {
		iter, err := importsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		ns.Imports = make(map[string]string)
		for iter.Next() {
			path, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ns.Imports[iter.Label()] = path
		}
	}

	if collectVal := v.LookupPath(cue.ParsePath("collect")); collectVal.Exists() {
		collect, err := collectVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		ns.Collect = collect
	}

	if aggVal := v.LookupPath(cue.ParsePath("aggregate")); aggVal.Exists() {
		iter, err := aggVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			agg, err := compileAggregate(name, iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			ns.Aggregates = append(ns.Aggregates, *agg)
		}
	}

	if cmdVal := v.LookupPath(cue.ParsePath("command")); cmdVal.Exists() {
		iter, err := cmdVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			cmd, err := compileCommand(name, iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			ns.Commands = append(ns.Commands, *cmd)
		}
	}

	resolveStrategies(ns)
	ns.Commands = append(ns.Commands, bootstrapCommands(ns)...)

	return ns, nil
}

// resolveStrategies fills in the storage strategy of injected state
// parameters that did not name one: the aggregate's declared strategy when it
// lives in the same namespace, direct otherwise.
func resolveStrategies(ns *ir.NamespaceDescriptor) {
	for i := range ns.Commands {
		for j := range ns.Commands[i].Injected {
			p := &ns.Commands[i].Injected[j]
			if p.Inject != ir.InjectState || p.Strategy != "" {
				continue
			}
			p.Strategy = ir.StrategyDirect
			if agg := ns.Aggregate(p.Type); agg != nil && agg.Managed {
				p.Strategy = agg.Strategy
			}
		}
	}
}

// bootstrapCommands derives one read command per field of every managed
// aggregate.
func bootstrapCommands(ns *ir.NamespaceDescriptor) []ir.CommandDescriptor {
	var cmds []ir.CommandDescriptor
	for _, agg := range ns.Aggregates {
		if !agg.Managed {
			continue
		}
		for _, f := range agg.Fields {
			cmds = append(cmds, ir.CommandDescriptor{
				Name:      f.Bootstrap,
				GoName:    naming.Pascal(f.Bootstrap),
				Namespace: ns.Name,
				Params:    []ir.Param{},
				Injected:  []ir.Param{},
				Category:  ir.AwaitValue,
				Returns:   f.Type,
				Doc:       fmt.Sprintf("reads the host's current %s.%s", agg.Name, f.GoName),
				Bootstrap: &ir.FieldRef{
					Aggregate: agg.Name,
					Field:     f.Field,
					Strategy:  agg.Strategy,
				},
			})
		}
	}
	return cmds
}

func compileCommand(namespace, label string, v cue.Value) (*ir.CommandDescriptor, error) {
	cmd := &ir.CommandDescriptor{
		Name:      label,
		GoName:    naming.Pascal(label),
		Namespace: namespace,
		Params:    []ir.Param{},
		Injected:  []ir.Param{},
		Doc:       docOf(v),
	}

	if argsVal := v.LookupPath(cue.ParsePath("args")); argsVal.Exists() {
		iter, err := argsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			p, err := compileParam(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			if p.Inject != ir.InjectNone {
				cmd.Injected = append(cmd.Injected, *p)
				continue
			}
			cmd.Params = append(cmd.Params, *p)
			if p.Ref {
				cmd.Borrows = true
			}
		}
	}

	var shape CallShape
	if retVal := v.LookupPath(cue.ParsePath("returns")); retVal.Exists() {
		ret, err := typeOf(retVal)
		if err != nil {
			return nil, err
		}
		shape.Returns = ret
		cmd.Returns = ret
	}
	if fallVal := v.LookupPath(cue.ParsePath("fallible")); fallVal.Exists() {
		shape.Fallible = true
		cmd.Ok = "struct{}"
		cmd.Err = "string"
		if okVal := fallVal.LookupPath(cue.ParsePath("ok")); okVal.Exists() {
			ok, err := typeOf(okVal)
			if err != nil {
				return nil, err
			}
			cmd.Ok = ok
		}
		if errVal := fallVal.LookupPath(cue.ParsePath("err")); errVal.Exists() {
			e, err := typeOf(errVal)
			if err != nil {
				return nil, err
			}
			cmd.Err = e
		}
	}
	if asyncVal := v.LookupPath(cue.ParsePath("async")); asyncVal.Exists() {
		async, err := asyncVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		shape.Async = async
	}

	category, err := Classify(shape)
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("command.%s", label),
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	cmd.Category = category

	return cmd, nil
}

func compileParam(label string, v cue.Value) (*ir.Param, error) {
	p := &ir.Param{
		Name:     label,
		GoName:   naming.Camel(label),
		WireName: naming.Snake(label),
		Field:    naming.Pascal(label),
	}

	if v.IncompleteKind() == cue.StructKind {
		if typeVal := v.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
			typ, err := typeOf(typeVal)
			if err != nil {
				return nil, err
			}
			p.Type = typ
		}
		if injectVal := v.LookupPath(cue.ParsePath("inject")); injectVal.Exists() {
			inject, err := injectVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.Inject = ir.Injection(inject)
		}
		if strategyVal := v.LookupPath(cue.ParsePath("strategy")); strategyVal.Exists() {
			strategy, err := strategyVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.Strategy = ir.Strategy(strategy)
		}
	} else {
		typ, err := typeOf(v)
		if err != nil {
			return nil, err
		}
		p.Type = typ
	}

	p.Ref = p.Inject == ir.InjectNone && strings.HasPrefix(strings.TrimSpace(p.Type), "*")
	return p, nil
}

func compileAggregate(namespace, name string, v cue.Value) (*ir.AggregateDescriptor, error) {
	agg := &ir.AggregateDescriptor{
		Name:      name,
		Namespace: namespace,
		Fields:    []ir.FieldDescriptor{},
		TagPrefix: name,
		Doc:       docOf(v),
	}

	if prefixVal := v.LookupPath(cue.ParsePath("tag_prefix")); prefixVal.Exists() {
		prefix, err := prefixVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		agg.TagPrefix = prefix
	}

	if managedVal := v.LookupPath(cue.ParsePath("managed")); managedVal.Exists() {
		switch managedVal.IncompleteKind() {
		case cue.BoolKind:
			managed, err := managedVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			agg.Managed = managed
			if managed {
				agg.Strategy = ir.StrategyDirect
			}
		default:
			strategy, err := managedVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			agg.Managed = true
			agg.Strategy = ir.Strategy(strategy)
		}
	}

	if fieldsVal := v.LookupPath(cue.ParsePath("fields")); fieldsVal.Exists() {
		iter, err := fieldsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			label := iter.Label()
			typ, err := typeOf(iter.Value())
			if err != nil {
				return nil, err
			}
			goName := naming.Pascal(label)
			fd := ir.FieldDescriptor{
				Parent: name,
				Field:  label,
				GoName: goName,
				Type:   typ,
				Event:  ir.EventName(name, goName),
				Tag:    agg.TagPrefix + goName,
			}
			if agg.Managed {
				fd.Bootstrap = "get_" + naming.Snake(name) + "_" + naming.Snake(label)
			}
			agg.Fields = append(agg.Fields, fd)
		}
	}

	return agg, nil
}

// typeOf reads a type either as a Go type expression string or as a bare
// CUE kind (string, int, bool, bytes, float).
func typeOf(v cue.Value) (string, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strings.TrimSpace(s), nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int64", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.BytesKind:
		return "[]byte", nil
	case cue.FloatKind, cue.NumberKind:
		return "float64", nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func docOf(v cue.Value) string {
	var parts []string
	for _, cg := range v.Doc() {
		if text := strings.TrimSpace(cg.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
