package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/born-ml/spkrec-export/export"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spkrec-export %s (%s, requires %s)\n",
				version, runtime.Version(), export.Toolchain)
		},
	}
}
