package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/photovoltex/interop/internal/compiler"
	"github.com/photovoltex/interop/internal/config"
	"github.com/photovoltex/interop/internal/gen"
	"github.com/photovoltex/interop/internal/ir"
	"github.com/photovoltex/interop/internal/registry"
	"github.com/photovoltex/interop/internal/store"
)

// GenerateResult summarizes a generation pass.
type GenerateResult struct {
	Out      string              `json:"out"`
	Files    []string            `json:"files"`
	Dispatch map[string][]string `json:"dispatch"`
	Combined []string            `json:"combined,omitempty"`
	Pending  []string            `json:"pending,omitempty"`
	RunID    string              `json:"run_id,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "generate [specs-dir]",
		Short: "Generate host and remote packages from declarations",
		Long: `Generate Go packages from a CUE declaration package.

Every namespace becomes a package with model.go (argument aggregates,
aggregates and field tags), host.go (handler interface and dispatch
registration) and remote.go (typed stubs and field listeners). A combine
list adds handlers.go to the root package.

Unless --no-store is given, the run is recorded in the ledger so that
"interop combine" can later join namespaces generated by separate runs.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), rootOpts, &flags, args, cmd)
		},
	}
	flags.register(cmd, true)

	return cmd
}

func runGenerate(ctx context.Context, opts *RootOptions, flags *projectFlags, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)
	logger := formatter.Logger()

	cfg, err := loadProject(opts, flags, args)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, err.Error(), nil)
	}

	loadResult, err := LoadDeclaration(cfg.Specs, cfg.Package)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, cfg.Specs)

	decl := loadResult.Declaration
	if errs := compiler.Validate(decl); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	reg := registry.New(registry.WithLogger(logger))
	var ledger *store.Store
	if cfg.Store != "" {
		ledger, err = openLedger(cfg.Store)
		if err != nil {
			return formatter.Fail(ErrCodeLedger, err.Error(), nil)
		}
		defer ledger.Close()
	}

	res, err := gen.Generate(decl, gen.Options{
		Module:   cfg.Module,
		Package:  cfg.Package,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		return failGenerate(formatter, err)
	}

	paths, err := writeFiles(cfg.Out, res.Files)
	if err != nil {
		return formatter.Fail(ErrCodeWriteFailed, err.Error(), nil)
	}
	for _, p := range paths {
		formatter.VerboseLog("Wrote %s", p)
	}

	result := GenerateResult{
		Out:      cfg.Out,
		Files:    paths,
		Dispatch: res.Dispatch,
		Pending:  res.Pending,
	}
	if res.Combined != nil {
		result.Combined = res.Combined.Names
	}

	if ledger != nil {
		run, err := recordRun(ctx, ledger, decl, cfg)
		if err != nil {
			return formatter.Fail(ErrCodeLedger, err.Error(), nil)
		}
		result.RunID = run.ID
		formatter.VerboseLog("Recorded run %s (seq %d)", run.ID, run.Seq)
	}

	return outputGenerateSuccess(formatter, result)
}

func outputGenerateSuccess(formatter *OutputFormatter, result GenerateResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Generated %d file(s) in %s\n\n", len(result.Files), result.Out)
	namespaces := make([]string, 0, len(result.Dispatch))
	for ns := range result.Dispatch {
		namespaces = append(namespaces, ns)
	}
	slices.Sort(namespaces)
	for _, ns := range namespaces {
		fmt.Fprintf(formatter.Writer, "  %s: %d command(s) collected\n", displayNamespace(ns), len(result.Dispatch[ns]))
	}
	if len(result.Combined) > 0 {
		fmt.Fprintf(formatter.Writer, "  combined: %d command(s)\n", len(result.Combined))
	}
	if len(result.Pending) > 0 {
		fmt.Fprintf(formatter.Writer, "  pending: %v\n", result.Pending)
	}
	return nil
}

// failGenerate reports a gen.Generate failure with the code of its cause.
func failGenerate(formatter *OutputFormatter, err error) error {
	var combineErr *registry.CombineError
	if errors.As(err, &combineErr) {
		_ = formatter.Error(combineErr.Code, combineErr.Message, combineErr.Names)
		return NewExitError(ExitFailure, err.Error())
	}
	if errors.Is(err, gen.ErrNoModule) {
		return formatter.Fail(ErrCodeConfig, err.Error()+" (set module or --module)", nil)
	}
	return formatter.Fail(ErrCodeGenerate, err.Error(), nil)
}

// writeFiles writes files below dir and returns the written paths.
func writeFiles(dir string, files []gen.File) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, f.Content, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// openLedger opens the ledger at path, creating its directory.
func openLedger(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return store.Open(path)
}

func recordRun(ctx context.Context, ledger *store.Store, decl *ir.Declaration, cfg config.Config) (store.Run, error) {
	seq, err := ledger.NextSeq(ctx)
	if err != nil {
		return store.Run{}, err
	}
	run, err := store.NewRun(decl, cfg.Package, cfg.Module, seq)
	if err != nil {
		return store.Run{}, err
	}
	if err := ledger.RecordRun(ctx, run); err != nil {
		return store.Run{}, err
	}
	return run, nil
}
