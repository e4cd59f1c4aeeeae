package gen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

// bindTest drives the generated cmd package: host dispatch registered with
// Register, a remote built with NewRemote, and a bootstrapped replica that
// must follow host writes.
const bindTest = `package cmd_test

import (
	"context"
	"testing"
	"time"

	"example.com/app/api/cmd"
	"github.com/photovoltex/interop/lib/bridge/memory"
	"github.com/photovoltex/interop/lib/event"
	"github.com/photovoltex/interop/lib/host"
	"github.com/photovoltex/interop/lib/remote"
)

type handlers struct{}

func (handlers) Greet(ctx context.Context, nameToGreet string) (string, error) {
	return "hi " + nameToGreet, nil
}

func (handlers) EmptyInvoke(ctx context.Context) error { return nil }

func (handlers) AwaitHeavyComputing(ctx context.Context) error { return nil }

func (handlers) ResultTest(ctx context.Context) (int32, error) { return 7, nil }

func (handlers) Rename(ctx context.Context, target *string, count int64, state host.State[cmd.TestState], app *host.App) error {
	return state.Write(func(s *cmd.TestState) error {
		return event.Update[cmd.TestState, string](app, s, cmd.TestStateFoo{}, *target)
	})
}

func TestBindFollowsHost(t *testing.T) {
	b := memory.New()
	defer b.Close()
	app := host.NewApp(b)
	app.Manage(host.NewRWLocked(cmd.TestState{Foo: "initial"}))
	d := host.NewDispatcher(app)
	cmd.Register(d, handlers{})
	b.Serve(d)

	ctx := context.Background()
	r := cmd.NewRemote(remote.NewClient(b))

	greeting, err := r.Greet(ctx, "x")
	if err != nil || greeting != "hi x" {
		t.Fatalf("greet = %q, %v", greeting, err)
	}

	changed := make(chan string, 8)
	replica, err := r.BindTestStateFoo(ctx, nil, func(v string) { changed <- v })
	if err != nil {
		t.Fatal(err)
	}
	defer replica.Close()
	if got := replica.Value(); got != "initial" {
		t.Fatalf("bootstrapped %q, want initial", got)
	}

	name := "renamed"
	r.Rename(&name, 1)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-changed:
			if v == "renamed" {
				return
			}
		case <-deadline:
			t.Fatalf("replica stuck at %q", replica.Value())
		}
	}
}
`

// writeGeneratedModule writes the sample declaration's output into a fresh
// module whose interop requirement points at this repository.
func writeGeneratedModule(t *testing.T) (dir string, env []string) {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a module with the go command")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}

	repo, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)

	dir = t.TempDir()
	gomod := fmt.Sprintf(`module example.com/app

go 1.25

require github.com/photovoltex/interop v0.0.0

replace github.com/photovoltex/interop => %s
`, filepath.ToSlash(repo))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(gomod), 0o644))
	if sum, err := os.ReadFile(filepath.Join(repo, "go.sum")); err == nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "go.sum"), sum, 0o644))
	}

	res := generate(t, sampleDeclaration)
	for _, f := range res.Files {
		path := filepath.Join(dir, "api", filepath.FromSlash(f.Path))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, f.Content, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api", "cmd", "bind_test.go"), []byte(bindTest), 0o644))

	env = append(os.Environ(), "GOFLAGS=-mod=mod", "GOWORK=off", "GOSUMDB=off")
	return dir, env
}

func TestGeneratedSourceTypeChecks(t *testing.T) {
	dir, env := writeGeneratedModule(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	pkgs, err := packages.Load(&packages.Config{
		Context: ctx,
		Mode:    packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:     dir,
		Env:     env,
		Tests:   true,
	}, "./...")
	require.NoError(t, err)

	var loaded []string
	var errs []string
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		if strings.HasPrefix(p.PkgPath, "example.com/app/") {
			loaded = append(loaded, p.PkgPath)
		}
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
	})
	require.Empty(t, errs)
	require.Contains(t, loaded, "example.com/app/api")
	require.Contains(t, loaded, "example.com/app/api/cmd")
	require.Contains(t, loaded, "example.com/app/api/events")
}

func TestGeneratedBindBootstrapsOverMemoryBridge(t *testing.T) {
	dir, env := writeGeneratedModule(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "go", "test", "-count=1", "./api/cmd")
	cmd.Dir = dir
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}
