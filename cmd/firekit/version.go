package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/firekit"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of firekit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "firekit version %s\n", strings.TrimSpace(firekit.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
