package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/marktree/internal/cli"
	"github.com/aretw0/marktree/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marktree",
	Short: "marktree keeps a bookmark tree consistent under drag-and-drop reordering",
	Long: `marktree serves, prints and reorders a bookmark tree held in memory, in a JSON file
or in Redis. Moves use the same index rules as the drag-and-drop engine.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands run under a context cancelled by SIGINT or SIGTERM; a second signal exits
// without waiting for shutdown.
func Execute() {
	ctx := cli.NotifyInterrupt(context.Background(), func(sig os.Signal) {
		fmt.Fprintf(os.Stderr, "received %v again, exiting\n", sig)
		os.Exit(cli.ExitCode(sig))
	})
	err := rootCmd.ExecuteContext(ctx)
	ctx.Stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if sig := ctx.Signal(); sig != nil {
		os.Exit(cli.ExitCode(sig))
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: ./marktree.yaml or $HOME/.config/marktree/marktree.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("store", config.BackendMemory, "Store backend: memory, file or redis")
	flags.String("seed", "", "YAML tree loaded into the memory backend")
	flags.String("file", "", "Bookmark file for the file backend")
	flags.String("redis-addr", "", "Redis address for the redis backend")
}

// loadRuntime reads the configuration and builds the engine for a command.
func loadRuntime(ctx context.Context, cmd *cobra.Command) (*cli.Runtime, *config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	rt, err := cli.CreateEngine(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}
