// Package gen renders Go source from compiled descriptors.
//
// Every namespace becomes one package of three files built from the same
// descriptors, so both sides always agree on names and types:
//   - model.go: aggregate structs, field tag types, argument aggregates
//   - host.go: the Handlers interface, per-command dispatch adapters,
//     Register and Commands (collected namespaces only), EmitAll
//   - remote.go: the Remote stub with one method per command plus Listen
//     and Bind methods per aggregate field
//
// A declaration with a combine list also gets handlers.go in the root
// package, registering every combined namespace on one dispatcher.
//
// # Registry
//
// Generation threads one registry.Registry through the pass. Each command is
// registered as its namespace is rendered, and collected namespaces are
// rendered before uncollected ones so a namespace's dispatch table only ever
// holds its own commands. Names left pending make Combine fail.
//
// Output is formatted with golang.org/x/tools/imports, which also drops
// imports a particular file does not reference.
package gen
