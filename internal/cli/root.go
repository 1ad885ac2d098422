package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

func Execute() error {
	return NewRoot().Execute()
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "uxtrap",
		Short:        "Critique UI screenshots against the usability trap catalogue",
		SilenceUsage: true,
	}
	root.AddCommand(
		EvaluateCmd(),
		TaxonomyCmd(),
		VersionCmd(),
	)
	return root
}

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "uxtrap", Version)
		},
	}
}
