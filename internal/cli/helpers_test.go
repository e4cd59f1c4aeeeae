package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const commandsDeclaration = `
package decl

command: ping: {}

namespace: cmd: {
	command: greet: {
		args: name: "string"
		returns: "string"
	}
	command: divide: {
		args: { a: int, b: int }
		fallible: { ok: "int64", err: "string" }
	}
	command: rename: args: {
		to:    "string"
		state: { inject: "state", type: "Profile" }
	}

	aggregate: Profile: {
		fields: { name: "string", online: "bool" }
		managed: "rwlock"
	}
}

combine: ["cmd"]
`

const eventsDeclaration = `
package decl

namespace: events: {
	command: tick: async: true
	aggregate: Progress: {
		fields: percent: int
		managed: "mutex"
	}
}
`

const draftDeclaration = `
package decl

namespace: draft: {
	collect: false
	command: sketch: {}
}
`

// writeDeclaration writes src as a single-file declaration package.
func writeDeclaration(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decl.cue"), []byte(src), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
