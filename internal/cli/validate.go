package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/photovoltex/interop/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Namespaces int                        `json:"namespaces"`
	Commands   int                        `json:"commands"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "validate [specs-dir]",
		Short: "Validate declarations without generating code",
		Long: `Validate a CUE declaration package without writing any files.

Checks every command and aggregate against the rules generation enforces:
supported types, no references in replies, unique wire and Go names,
known injection markers and storage strategies, resolvable imports and
combine entries.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, &flags, args, cmd)
		},
	}
	cmd.Flags().StringVar(&flags.pkg, "package", "", "package name of top-level declarations")

	return cmd
}

func runValidate(opts *RootOptions, flags *projectFlags, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

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
	result := ValidationResult{Namespaces: len(decl.Namespaces)}
	for _, ns := range decl.Namespaces {
		formatter.VerboseLog("Validating namespace: %s", displayNamespace(ns.Name))
		result.Commands += len(ns.Commands)
	}

	if errs := compiler.Validate(decl); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	result.Valid = true
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ All declarations valid (%d namespace(s), %d command(s))\n",
		result.Namespaces, result.Commands)
	return nil
}

// failLoad reports a LoadDeclaration failure.
func failLoad(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		var details any
		if loadErr.Pos.IsValid() {
			details = map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		return formatter.Fail(loadErr.Code, loadErr.Message, details)
	}
	return formatter.Fail(ErrCodeGeneric, err.Error(), nil)
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateSpecsDir loads and validates the declaration package in dir.
func ValidateSpecsDir(dir, rootPackage string) ([]compiler.ValidationError, error) {
	loadResult, err := LoadDeclaration(dir, rootPackage)
	if err != nil {
		return nil, err
	}
	return compiler.Validate(loadResult.Declaration), nil
}

func displayNamespace(name string) string {
	if name == "" {
		return "(root)"
	}
	return name
}
