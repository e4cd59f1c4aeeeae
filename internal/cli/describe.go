package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/photovoltex/interop/internal/ir"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "describe [specs-dir]",
		Short: "Print the compiled command and field descriptors",
		Long: `Print what generation would produce for each namespace: every
command with its wire name, category, wire and injected parameters and
reply type, and every aggregate field with its event name and bootstrap
command. With --format json the descriptors are printed as IR.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(rootOpts, &flags, args, cmd)
		},
	}
	cmd.Flags().StringVar(&flags.pkg, "package", "", "package name of top-level declarations")

	return cmd
}

func runDescribe(opts *RootOptions, flags *projectFlags, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadProject(opts, flags, args)
	if err != nil {
		return formatter.Fail(ErrCodeConfig, err.Error(), nil)
	}
	loadResult, err := LoadDeclaration(cfg.Specs, cfg.Package)
	if err != nil {
		return failLoad(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(loadResult.Declaration)
	}
	return writeDescription(formatter.Writer, loadResult.Declaration)
}

func writeDescription(w io.Writer, decl *ir.Declaration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, ns := range decl.Namespaces {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		collect := "collected"
		if !ns.Collect {
			collect = "not collected"
		}
		fmt.Fprintf(tw, "%s (package %s, %s)\n", displayNamespace(ns.Name), ns.Package, collect)

		for _, c := range ns.Commands {
			fmt.Fprintf(tw, "  %s\t%s\t(%s)\t%s\t%s\n",
				c.Name, c.Category, formatParams(c.Params), formatReply(c), formatNotes(c))
		}
		for _, agg := range ns.Aggregates {
			managed := "unmanaged"
			if agg.Managed {
				managed = "managed " + string(agg.Strategy)
			}
			fmt.Fprintf(tw, "  %s\taggregate\t%s\t\t\n", agg.Name, managed)
			for _, f := range agg.Fields {
				fmt.Fprintf(tw, "    .%s\t%s\t%s\t%s\t\n", f.Field, f.Type, f.Event, f.Bootstrap)
			}
		}
	}
	if len(decl.Combine) > 0 {
		fmt.Fprintf(tw, "\ncombine: %s\n", strings.Join(decl.Combine, ", "))
	}
	return tw.Flush()
}

func formatParams(params []ir.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.WireName+" "+p.Type)
	}
	return strings.Join(parts, ", ")
}

func formatReply(c ir.CommandDescriptor) string {
	if !c.Category.Awaits() {
		return ""
	}
	v := c.ValueType()
	switch {
	case v == "":
		return "-> ()"
	case c.Category == ir.AwaitFallible:
		return fmt.Sprintf("-> %s | %s", v, c.Err)
	}
	return "-> " + v
}

func formatNotes(c ir.CommandDescriptor) string {
	var notes []string
	for _, p := range c.Injected {
		switch p.Inject {
		case ir.InjectApp:
			notes = append(notes, "app")
		case ir.InjectState:
			notes = append(notes, fmt.Sprintf("state %s/%s", p.Type, p.Strategy))
		}
	}
	if c.Borrows {
		notes = append(notes, "borrows")
	}
	if c.Bootstrap != nil {
		notes = append(notes, "bootstrap "+c.Bootstrap.Aggregate+"."+c.Bootstrap.Field)
	}
	if len(notes) == 0 {
		return ""
	}
	return "[" + strings.Join(notes, ", ") + "]"
}
