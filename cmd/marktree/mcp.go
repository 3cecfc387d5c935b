package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/aretw0/marktree"
	"github.com/aretw0/marktree/pkg/adapters/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the bookmark tree to AI agents as MCP tools (get_tree, move_bookmark,
drop_bookmark) and the marktree://tree resource.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		// Ensure logs don't corrupt JSON-RPC on Stdout
		log.SetOutput(os.Stderr)

		rt, _, err := loadRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := mcp.NewServer(rt.Engine,
			mcp.WithVersion(strings.TrimSpace(marktree.Version)),
			mcp.WithLogger(rt.Logger),
		)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return rt.Engine.Run(ctx)
		})
		if rt.Watch != nil {
			g.Go(func() error {
				return rt.Watch(ctx)
			})
		}

		switch transport {
		case "stdio":
			rt.Logger.Info("Starting marktree MCP Server (Stdio)")
			if err := srv.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server failed: %w", err)
			}
			return nil
		case "sse":
			g.Go(func() error {
				err := srv.ServeSSE(ctx, addr, "http://localhost"+addr)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			if err := g.Wait(); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			rt.Logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
}
