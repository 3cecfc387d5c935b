package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/marktree"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of marktree",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "marktree version %s\n", strings.TrimSpace(marktree.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
