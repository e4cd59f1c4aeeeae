package store

import (
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"

	"github.com/photovoltex/interop/internal/compiler"
	"github.com/photovoltex/interop/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// compileTestDeclaration compiles an inline CUE declaration.
func compileTestDeclaration(t *testing.T, src string) *ir.Declaration {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		t.Fatalf("compile CUE: %v", err)
	}
	decl, err := compiler.CompileDeclaration(v, "api")
	if err != nil {
		t.Fatalf("CompileDeclaration() failed: %v", err)
	}
	return decl
}
