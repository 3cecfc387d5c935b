package main

import (
	"os"

	"github.com/aretw0/marktree/internal/cli"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree [folder-id]",
	Short: "Print the bookmark tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, _, err := loadRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		snap, err := rt.Engine.Tree(ctx)
		if err != nil {
			return err
		}
		showIDs, _ := cmd.Flags().GetBool("ids")
		rootID := ""
		if len(args) == 1 {
			rootID = args[0]
		}
		return cli.NewTreePrinter(os.Stdout, showIDs).Print(snap, rootID)
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().Bool("ids", false, "Show node ids")
}
