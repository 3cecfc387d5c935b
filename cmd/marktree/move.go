package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/marktree/pkg/domain"
	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move <id> <parent-id>",
	Short: "Move a node with the store's index rules",
	Long: `Moves a node into parent-id. --index counts the siblings after the node is removed
from its current place; without it the node is appended.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, _, err := loadRuntime(ctx, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		dest := domain.Append(args[1])
		if cmd.Flags().Changed("index") {
			index, _ := cmd.Flags().GetInt("index")
			dest = domain.At(args[1], index)
		}
		if _, err := rt.Engine.Tree(ctx); err != nil {
			return err
		}
		node, err := rt.Engine.Move(ctx, args[0], dest)
		if err != nil {
			return err
		}
		return printNode(cmd, node)
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Move a node the way a drag and drop would",
	Long: `Resolves a drop target against the node's current position and moves it.

  --gap PARENT:N   the gap before child N of PARENT, in the current order
  --folder ID      the folder body (append); add --header to prepend`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := dropTarget(cmd)
		if err != nil {
			return err
		}

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
		parentID, index, ok := snap.Position(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, args[0])
		}
		cand := domain.DragCandidate{ItemID: args[0], SourceParentID: parentID, SourceIndex: index}

		node, err := rt.Engine.Drop(ctx, cand, target)
		if domain.IsLocalNoOp(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "no change: %v\n", err)
			return nil
		}
		if err != nil {
			return err
		}
		return printNode(cmd, node)
	},
}

func dropTarget(cmd *cobra.Command) (domain.InsertionTarget, error) {
	gap, _ := cmd.Flags().GetString("gap")
	folder, _ := cmd.Flags().GetString("folder")
	header, _ := cmd.Flags().GetBool("header")

	switch {
	case gap != "" && folder != "":
		return domain.InsertionTarget{}, fmt.Errorf("use either --gap or --folder")
	case gap != "":
		parent, raw, ok := strings.Cut(gap, ":")
		index, err := strconv.Atoi(raw)
		if !ok || parent == "" || err != nil {
			return domain.InsertionTarget{}, fmt.Errorf("invalid --gap %q, want PARENT:INDEX", gap)
		}
		return domain.InsertionPoint(parent, index), nil
	case folder != "":
		return domain.FolderTarget(folder, header), nil
	}
	return domain.InsertionTarget{}, fmt.Errorf("a target is required (--gap or --folder)")
}

func printNode(cmd *cobra.Command, node *domain.Node) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(node)
}

func init() {
	rootCmd.AddCommand(moveCmd, dropCmd)
	moveCmd.Flags().Int("index", 0, "Destination index among the remaining siblings")
	dropCmd.Flags().String("gap", "", "Gap target as PARENT:INDEX")
	dropCmd.Flags().String("folder", "", "Folder target")
	dropCmd.Flags().Bool("header", false, "Drop on the folder header (prepend)")
}
