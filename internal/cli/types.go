package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/omnilink/internal/types"
)

// TypeInfo describes one registered capture type.
type TypeInfo struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// NewTypesCommand creates the types command.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types [catalog]",
		Short: "List capture types",
		Long: `List the capture types available to [name:type] tokens.

With a CUE catalog argument, the catalog's custom types are listed
alongside the built-in ones.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := ""
			if len(args) == 1 {
				catalog = args[0]
			}
			return runTypes(rootOpts, catalog, cmd)
		},
	}
	return cmd
}

func runTypes(opts *RootOptions, catalog string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	reg := types.New()
	if catalog != "" {
		if _, err := loadTemplates(f, catalog, reg); err != nil {
			return err
		}
	}

	available := reg.Available()
	infos := make([]TypeInfo, 0, len(available))
	for _, name := range reg.Names() {
		infos = append(infos, TypeInfo{Name: name, Pattern: available[name]})
	}

	if f.JSON() {
		return f.Success(infos)
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATTERN")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Pattern)
	}
	return tw.Flush()
}
