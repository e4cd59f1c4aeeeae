package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photovoltex/interop/internal/registry"
	"github.com/photovoltex/interop/internal/store"
)

func TestGenerateWritesPackages(t *testing.T) {
	dir := writeDeclaration(t, commandsDeclaration)
	out := t.TempDir()

	stdout, _, err := execute(t, "generate", dir,
		"--out", out, "--module", "example.com/app/api", "--no-store")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Generated 7 file(s)")
	assert.Contains(t, stdout, "cmd: 5 command(s) collected")
	assert.Contains(t, stdout, "combined: 5 command(s)")

	for _, name := range []string{
		"model.go", "host.go", "remote.go", "handlers.go",
		"cmd/model.go", "cmd/host.go", "cmd/remote.go",
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	handlers, err := os.ReadFile(filepath.Join(out, "handlers.go"))
	require.NoError(t, err)
	assert.Contains(t, string(handlers), `"example.com/app/api/cmd"`)
	assert.Contains(t, string(handlers), "cmd.Register(d, h.Cmd)")

	remote, err := os.ReadFile(filepath.Join(out, "cmd", "remote.go"))
	require.NoError(t, err)
	assert.Contains(t, string(remote), "func (r *Remote) Greet(ctx context.Context, name string) (string, error)")
}

func TestGenerateJSON(t *testing.T) {
	dir := writeDeclaration(t, eventsDeclaration)
	out := t.TempDir()

	stdout, _, err := execute(t, "--format", "json", "generate", dir, "--out", out, "--no-store")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   GenerateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Files, 3)
	assert.Equal(t, []string{"get_progress_percent", "tick"}, resp.Data.Dispatch["events"])
	assert.Empty(t, resp.Data.RunID)
}

func TestGenerateCombineNeedsModule(t *testing.T) {
	dir := writeDeclaration(t, commandsDeclaration)

	stdout, _, err := execute(t, "generate", dir, "--out", t.TempDir(), "--no-store")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "--module")
}

func TestGenerateInvalidDeclarationWritesNothing(t *testing.T) {
	dir := writeDeclaration(t, `
package decl

namespace: cmd: command: lookup: returns: "*string"
`)
	out := filepath.Join(t.TempDir(), "api")

	_, _, err := execute(t, "generate", dir, "--out", out, "--no-store")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoDirExists(t, out)
}

func TestGenerateRecordsRun(t *testing.T) {
	dir := writeDeclaration(t, commandsDeclaration)
	ledgerPath := filepath.Join(t.TempDir(), "state", "ledger.db")

	_, _, err := execute(t, "generate", dir, "--out", t.TempDir(),
		"--module", "example.com/app/api", "--store", ledgerPath)
	require.NoError(t, err)

	ledger, err := store.Open(ledgerPath)
	require.NoError(t, err)
	defer ledger.Close()

	run, err := ledger.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, "example.com/app/api", run.Module)
	assert.Equal(t, "api", run.RootPackage)

	reg := registry.New()
	require.NoError(t, ledger.Restore(context.Background(), reg))
	assert.Contains(t, reg.Union(), "cmd::greet")
	assert.Contains(t, reg.Union(), "ping")
}

func TestGenerateUsesConfigFile(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, "decl"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "decl", "decl.cue"), []byte(eventsDeclaration), 0o644))
	cfgPath := filepath.Join(project, "interop.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("specs: decl\nout: gen\nstore: \"\"\n"), 0o644))

	_, _, err := execute(t, "--config", cfgPath, "generate")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(project, "gen", "events", "remote.go"))
	assert.NoFileExists(t, filepath.Join(project, ".interop", "ledger.db"))
}
