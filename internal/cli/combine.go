package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/photovoltex/interop/internal/gen"
	"github.com/photovoltex/interop/internal/registry"
	"github.com/photovoltex/interop/internal/store"
)

// CombineResult summarizes a combine step.
type CombineResult struct {
	File       string   `json:"file"`
	Namespaces []string `json:"namespaces"`
	Commands   []string `json:"commands"`
	Omitted    []string `json:"omitted,omitempty"`
}

// NewCombineCommand creates the combine command.
func NewCombineCommand(rootOpts *RootOptions) *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "combine <namespace>...",
		Short: "Combine namespaces recorded in the ledger into one dispatch table",
		Long: `Combine collected namespaces from earlier generate runs.

Reads the latest recording of every namespace from the ledger and writes
handlers.go to the root package, registering the handlers of the named
namespaces on one dispatcher. Fails when a recorded namespace was never
collected, when two namespaces share a command name, or when the result
is empty. Collected commands left out are reported.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCombine(cmd.Context(), rootOpts, &flags, args, cmd)
		},
	}
	flags.register(cmd, true)

	return cmd
}

func runCombine(ctx context.Context, opts *RootOptions, flags *projectFlags, namespaces []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)

	cfg, err := loadProject(opts, flags, nil)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, err.Error(), nil)
	}
	if cfg.Store == "" {
		return formatter.Fail(ErrCodeConfig, "combine reads the ledger; a store path is required", nil)
	}

	if _, err := os.Stat(cfg.Store); err != nil {
		return formatter.Fail(ErrCodeLedger, fmt.Sprintf("ledger not found: %s", cfg.Store), nil)
	}
	ledger, err := store.Open(cfg.Store)
	if err != nil {
		return formatter.Fail(ErrCodeLedger, err.Error(), nil)
	}
	defer ledger.Close()

	module := cfg.Module
	if module == "" {
		run, err := ledger.LatestRun(ctx)
		if err != nil {
			return formatter.Fail(ErrCodeLedger, err.Error(), nil)
		}
		module = run.Module
		formatter.VerboseLog("Using module %q from run %s", module, run.ID)
	}

	reg := registry.New(registry.WithLogger(formatter.Logger()))
	if err := ledger.Restore(ctx, reg); err != nil {
		return formatter.Fail(ErrCodeLedger, err.Error(), nil)
	}

	combined, err := reg.Combine(namespaces)
	if err != nil {
		return failGenerate(formatter, err)
	}
	f, err := gen.Combined(combined, cfg.Package, module)
	if err != nil {
		return failGenerate(formatter, err)
	}
	paths, err := writeFiles(cfg.Out, []gen.File{f})
	if err != nil {
		return formatter.Fail(ErrCodeWriteFailed, err.Error(), nil)
	}

	result := CombineResult{
		File:       paths[0],
		Namespaces: combined.Namespaces,
		Commands:   combined.Names,
		Omitted:    combined.Omitted,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Combined %d command(s) from %d namespace(s) into %s\n",
		len(result.Commands), len(result.Namespaces), filepath.Base(result.File))
	if len(result.Omitted) > 0 {
		fmt.Fprintf(formatter.Writer, "  omitted: %v\n", result.Omitted)
	}
	return nil
}
