package compiler

import (
	"fmt"
	"regexp"

	"github.com/photovoltex/interop/internal/ir"
	"github.com/photovoltex/interop/internal/naming"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Namespace and command errors (E101-E119)
	ErrInvalidNamespace    = "E101" // namespace label not usable as a package
	ErrInvalidCommandName  = "E102" // command name outside \w+
	ErrDuplicateName       = "E103" // two commands share a wire or Go name
	ErrInvalidType         = "E104" // type expression cannot cross the bridge
	ErrReferenceReturn     = "E105" // pointer in a reply position
	ErrInvalidCategory     = "E106" // category outside the closed set
	ErrUnknownInjection    = "E107" // inject marker other than app/state
	ErrInvalidStateInject  = "E108" // state injection without a named type
	ErrDuplicateParam      = "E109" // two parameters normalize to one wire name
	ErrUnresolvedImport    = "E110" // package qualifier missing from imports
	ErrInvalidCombineEntry = "E111" // combine names an unknown namespace

	// Aggregate errors (E120-E129)
	ErrInvalidAggregateName = "E120" // aggregate is not an exported identifier
	ErrAggregateNoFields    = "E121" // aggregate declares no fields
	ErrAggregateRefField    = "E122" // aggregate field holds a reference
	ErrInvalidStrategy      = "E123" // unknown storage strategy
	ErrDuplicateField       = "E124" // two fields share a Go name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	// commandNamePattern keeps names matchable by the host's
	// "command (\w+) not found" diagnostic.
	commandNamePattern   = regexp.MustCompile(`^\w+$`)
	namespaceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Validate checks compiled descriptors against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *ir.Declaration:
		return validateDeclaration(d)
	case ir.Declaration:
		return validateDeclaration(&d)
	case *ir.NamespaceDescriptor:
		return validateNamespace(d)
	case ir.NamespaceDescriptor:
		return validateNamespace(&d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateDeclaration(d *ir.Declaration) []ValidationError {
	var errs []ValidationError
	known := make(map[string]bool)
	for i := range d.Namespaces {
		known[d.Namespaces[i].Name] = true
		errs = append(errs, validateNamespace(&d.Namespaces[i])...)
	}
	for i, name := range d.Combine {
		if !known[name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("combine[%d]", i),
				Message: fmt.Sprintf("namespace %q is not declared", name),
				Code:    ErrInvalidCombineEntry,
			})
		}
	}
	return errs
}

func validateNamespace(ns *ir.NamespaceDescriptor) []ValidationError {
	var errs []ValidationError
	prefix := "namespace"
	if ns.Name != "" {
		prefix = "namespace." + ns.Name
		if !namespaceNamePattern.MatchString(ns.Name) {
			errs = append(errs, ValidationError{
				Field:   prefix,
				Message: fmt.Sprintf("namespace %q must match %s", ns.Name, namespaceNamePattern),
				Code:    ErrInvalidNamespace,
			})
		}
	}

	wireNames := make(map[string]bool)
	goNames := make(map[string]bool)
	for _, cmd := range ns.Commands {
		field := fmt.Sprintf("%s.command.%s", prefix, cmd.Name)
		if wireNames[cmd.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate command name %q", cmd.Name),
				Code:    ErrDuplicateName,
			})
		}
		wireNames[cmd.Name] = true
		if goNames[cmd.GoName] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("command %q maps to Go name %s already in use", cmd.Name, cmd.GoName),
				Code:    ErrDuplicateName,
			})
		}
		goNames[cmd.GoName] = true
		errs = append(errs, validateCommand(ns, field, &cmd)...)
	}

	for _, agg := range ns.Aggregates {
		errs = append(errs, validateAggregate(ns, fmt.Sprintf("%s.aggregate.%s", prefix, agg.Name), &agg)...)
	}

	return errs
}

func validateCommand(ns *ir.NamespaceDescriptor, field string, cmd *ir.CommandDescriptor) []ValidationError {
	var errs []ValidationError

	if !commandNamePattern.MatchString(cmd.Name) || naming.Pascal(cmd.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("command name %q must match %s", cmd.Name, commandNamePattern),
			Code:    ErrInvalidCommandName,
		})
	}

	if !cmd.Category.Valid() {
		errs = append(errs, ValidationError{
			Field:   field + ".category",
			Message: fmt.Sprintf("unknown category %q", cmd.Category),
			Code:    ErrInvalidCategory,
		})
	}

	seen := make(map[string]bool)
	for _, p := range cmd.Params {
		pf := fmt.Sprintf("%s.args.%s", field, p.Name)
		if seen[p.WireName] {
			errs = append(errs, ValidationError{
				Field:   pf,
				Message: fmt.Sprintf("parameter normalizes to wire name %q already in use", p.WireName),
				Code:    ErrDuplicateParam,
			})
		}
		seen[p.WireName] = true
		errs = append(errs, validateType(ns, pf, p.Type, true)...)
	}

	for _, p := range cmd.Injected {
		pf := fmt.Sprintf("%s.args.%s", field, p.Name)
		switch p.Inject {
		case ir.InjectApp:
		case ir.InjectState:
			if p.Type == "" || p.Ref {
				errs = append(errs, ValidationError{
					Field:   pf,
					Message: "state injection needs the managed type name",
					Code:    ErrInvalidStateInject,
				})
			} else {
				errs = append(errs, validateType(ns, pf, p.Type, false)...)
			}
			if !p.Strategy.Valid() {
				errs = append(errs, ValidationError{
					Field:   pf + ".strategy",
					Message: fmt.Sprintf("unknown strategy %q", p.Strategy),
					Code:    ErrInvalidStrategy,
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   pf + ".inject",
				Message: fmt.Sprintf("unknown injection %q, must be \"app\" or \"state\"", p.Inject),
				Code:    ErrUnknownInjection,
			})
		}
	}

	for _, rf := range []struct{ name, typ string }{
		{"returns", cmd.Returns},
		{"fallible.ok", cmd.Ok},
		{"fallible.err", cmd.Err},
	} {
		if rf.typ == "" {
			continue
		}
		errs = append(errs, validateType(ns, field+"."+rf.name, rf.typ, false)...)
	}

	return errs
}

func validateAggregate(ns *ir.NamespaceDescriptor, field string, agg *ir.AggregateDescriptor) []ValidationError {
	var errs []ValidationError

	if !naming.IsExported(agg.Name) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("aggregate %q must be an exported Go identifier", agg.Name),
			Code:    ErrInvalidAggregateName,
		})
	}
	if len(agg.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".fields",
			Message: "aggregate must declare at least one field",
			Code:    ErrAggregateNoFields,
		})
	}
	if agg.Managed && !agg.Strategy.Valid() {
		errs = append(errs, ValidationError{
			Field:   field + ".managed",
			Message: fmt.Sprintf("unknown strategy %q, must be direct, optional, mutex or rwlock", agg.Strategy),
			Code:    ErrInvalidStrategy,
		})
	}

	seen := make(map[string]bool)
	for _, f := range agg.Fields {
		ff := fmt.Sprintf("%s.fields.%s", field, f.Field)
		if seen[f.GoName] {
			errs = append(errs, ValidationError{
				Field:   ff,
				Message: fmt.Sprintf("field maps to Go name %s already in use", f.GoName),
				Code:    ErrDuplicateField,
			})
		}
		seen[f.GoName] = true

		shape, err := ParseType(f.Type)
		if err == nil && shape.Ref {
			errs = append(errs, ValidationError{
				Field:   ff,
				Message: "aggregate fields must own their values, references are not allowed",
				Code:    ErrAggregateRefField,
			})
			continue
		}
		errs = append(errs, validateType(ns, ff, f.Type, false)...)
	}

	return errs
}

// validateType checks one type expression. Pointers are accepted only where
// allowRef is set.
func validateType(ns *ir.NamespaceDescriptor, field, typ string, allowRef bool) []ValidationError {
	shape, err := ParseType(typ)
	if err != nil {
		return []ValidationError{{
			Field:   field,
			Message: err.Error(),
			Code:    ErrInvalidType,
		}}
	}

	var errs []ValidationError
	if shape.Ref && !allowRef {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("reference type %q is not representable here", typ),
			Code:    ErrReferenceReturn,
		})
	}
	for _, pkg := range shape.Packages {
		if _, ok := ns.Imports[pkg]; ok {
			continue
		}
		if _, ok := StdlibImport(pkg); ok {
			continue
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("package %q is neither imported nor a known standard package", pkg),
			Code:    ErrUnresolvedImport,
		})
	}
	return errs
}

// stdlibQualifiers maps the standard packages a type expression may use
// without an imports entry to their import paths.
var stdlibQualifiers = map[string]string{
	"time":     "time",
	"json":     "encoding/json",
	"big":      "math/big",
	"netip":    "net/netip",
	"url":      "net/url",
	"net":      "net",
	"os":       "os",
	"fs":       "io/fs",
	"template": "text/template",
}

// StdlibImport returns the import path of a standard package qualifier
// accepted in type expressions.
func StdlibImport(qualifier string) (string, bool) {
	path, ok := stdlibQualifiers[qualifier]
	return path, ok
}
