package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/photovoltex/interop/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // project file; empty means ./interop.yaml when present
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the interop CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "interop",
		Short: "interop - typed commands and field events across a bridge",
		Long: `Generate matching host and remote Go packages from CUE declarations.

Each declared command becomes a host handler and a typed remote stub that
agree on the wire name and argument shape. Each aggregate field becomes
an event the remote can listen to or bind a replica to.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "project file (default ./"+config.DefaultFile+")")

	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCombineCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))

	return cmd
}

// projectFlags are the per-command overrides of the project file. Flags win
// over the file and the environment.
type projectFlags struct {
	out     string
	module  string
	pkg     string
	store   string
	noStore bool
}

func (p *projectFlags) register(cmd *cobra.Command, withOut bool) {
	if withOut {
		cmd.Flags().StringVarP(&p.out, "out", "o", "", "output directory")
	}
	cmd.Flags().StringVar(&p.module, "module", "", "import path of the output directory")
	cmd.Flags().StringVar(&p.pkg, "package", "", "package name of top-level declarations")
	cmd.Flags().StringVar(&p.store, "store", "", "ledger database path")
	cmd.Flags().BoolVar(&p.noStore, "no-store", false, "do not read or write the ledger")
}

// loadProject resolves the effective configuration of one invocation.
// specsArg is the optional positional declaration directory.
func loadProject(opts *RootOptions, flags *projectFlags, specsArg []string) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if len(specsArg) > 0 {
		cfg.Specs = specsArg[0]
	}
	if flags != nil {
		if flags.out != "" {
			cfg.Out = flags.out
		}
		if flags.module != "" {
			cfg.Module = flags.module
		}
		if flags.pkg != "" {
			cfg.Package = flags.pkg
		}
		if flags.store != "" {
			cfg.Store = flags.store
		}
		if flags.noStore {
			cfg.Store = ""
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
