package gen

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/photovoltex/interop/internal/compiler"
	"github.com/photovoltex/interop/internal/ir"
	"github.com/photovoltex/interop/internal/registry"
)

// LibPath is the import path of the runtime packages generated code uses.
const LibPath = "github.com/photovoltex/interop/lib"

// Options controls a generation pass.
type Options struct {
	// Module is the import path of the output directory. Required when the
	// declaration combines namespaces.
	Module string
	// Package is the name of the root package.
	Package string
	// Registry receives every generated command. A fresh one is used when
	// nil.
	Registry *registry.Registry
	Logger   *slog.Logger
}

// File is one generated source file. Path is relative to the output
// directory.
type File struct {
	Path    string
	Content []byte
}

// Result is the output of a generation pass.
type Result struct {
	Files []File
	// Dispatch holds the collected dispatch list of each namespace, keyed by
	// namespace name ("" for the root namespace).
	Dispatch map[string][]string
	// Combined is set when the declaration has a combine list.
	Combined *registry.Combined
	// Pending lists commands registered but never collected.
	Pending []string
	// Union lists every collected qualified name.
	Union []string
}

// ErrNoModule is returned when a combine step has no module path to import
// namespace packages from.
var ErrNoModule = errors.New("combine needs the module import path of the output directory")

// Generate renders every namespace of decl and, when decl has a combine
// list, the combined dispatch file.
func Generate(decl *ir.Declaration, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(registry.WithLogger(logger))
	}
	if opts.Package == "" {
		opts.Package = "api"
	}

	res := &Result{Dispatch: make(map[string][]string)}

	order := make([]*ir.NamespaceDescriptor, 0, len(decl.Namespaces))
	for i := range decl.Namespaces {
		order = append(order, &decl.Namespaces[i])
	}
	slices.SortStableFunc(order, func(a, b *ir.NamespaceDescriptor) int {
		switch {
		case a.Collect == b.Collect:
			return 0
		case a.Collect:
			return -1
		default:
			return 1
		}
	})

	for _, ns := range order {
		for _, cmd := range ns.Commands {
			reg.Register(cmd.Name)
		}
		var dispatch []string
		if ns.Collect {
			dispatch = reg.Collect(ns.Name)
			res.Dispatch[ns.Name] = dispatch
		}

		files, err := Namespace(ns, dispatch)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, files...)
		logger.Debug("rendered namespace",
			"namespace", ns.Name,
			"package", ns.Package,
			"commands", len(ns.Commands),
			"aggregates", len(ns.Aggregates))
	}

	if len(decl.Combine) > 0 {
		combined, err := reg.Combine(decl.Combine)
		if err != nil {
			return nil, err
		}
		f, err := Combined(combined, opts.Package, opts.Module)
		if err != nil {
			return nil, err
		}
		res.Combined = combined
		res.Files = append(res.Files, f)
	} else if pending := reg.Pending(); len(pending) > 0 {
		logger.Warn("commands registered but not collected",
			"commands", strings.Join(pending, ", "))
	}

	res.Pending = reg.Pending()
	res.Union = reg.Union()
	slices.SortFunc(res.Files, func(a, b File) int {
		return strings.Compare(a.Path, b.Path)
	})
	return res, nil
}

// Namespace renders the three files of one namespace. dispatch is the
// collected dispatch list, nil when the namespace is not collected.
func Namespace(ns *ir.NamespaceDescriptor, dispatch []string) ([]File, error) {
	view, err := newNamespaceView(ns, dispatch)
	if err != nil {
		return nil, err
	}

	dir := ""
	if ns.Name != "" {
		dir = ns.Package
	}

	var files []File
	for _, name := range []string{"model", "host", "remote"} {
		file := path.Join(dir, name+".go")
		src, err := render(name+".go.tmpl", fileData{
			Package: ns.Package,
			Imports: view.imports,
			NS:      view,
		})
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", file, err)
		}
		out, err := format(file, src)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: file, Content: out})
	}
	return files, nil
}

// Combined renders handlers.go for the root package.
func Combined(c *registry.Combined, pkg, module string) (File, error) {
	if module == "" {
		return File{}, ErrNoModule
	}
	data := combinedData{Package: pkg, Names: c.Names}
	imports := []importSpec{{Path: LibPath + "/host"}}
	for _, ns := range c.Namespaces {
		if len(c.Commands[ns]) == 0 {
			continue
		}
		p := compiler.PackageName(ns)
		imports = append(imports, importSpec{Path: module + "/" + p})
		data.Namespaces = append(data.Namespaces, combinedNamespace{
			Name:    ns,
			Package: p,
			Field:   exportedName(p),
		})
	}
	data.Imports = imports

	src, err := render("handlers.go.tmpl", data)
	if err != nil {
		return File{}, fmt.Errorf("render handlers.go: %w", err)
	}
	out, err := format("handlers.go", src)
	if err != nil {
		return File{}, err
	}
	return File{Path: "handlers.go", Content: out}, nil
}
