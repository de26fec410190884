package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/mook/componenthost/api"
	"github.com/mook/componenthost/components"
	"github.com/mook/componenthost/parser"
	_ "github.com/mook/componenthost/pprof"
	"github.com/mook/componenthost/registry"
	"github.com/mook/componenthost/settings"
	"github.com/mook/componenthost/style"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type options struct {
	config   string
	settings string
	verbose  bool
}

// host bundles the registry with the collaborators it was built from.
type host struct {
	styles   *style.Sheet
	registry *registry.Registry
}

func openHost(opts *options, metrics prometheus.Registerer) (*host, error) {
	store, err := settings.Open(opts.settings)
	if err != nil {
		return nil, err
	}
	h := &host{styles: style.NewSheet()}
	h.registry = registry.New(registry.Config{
		Store:    store,
		Parser:   parser.YAML{},
		Builtins: components.Builtins,
		Styles:   h.styles,
		Persist:  store.Save,
		Metrics:  metrics,
	})
	return h, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "componenthost",
		Short: "Host and manage user installable components",
		Long: `componenthost runs a set of built-in components and manages user
installed components: installing, updating, uninstalling and toggling them.

Changes to user components take effect on the next reload.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
				slog.SetDefault(slog.New(handler))
			}
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.config, "config", "config.yaml", "configuration file")
	flags.StringVar(&opts.settings, "settings", "settings.yaml", "user component settings file")
	flags.BoolVar(&opts.verbose, "verbose", false, "emit extra logging")

	rootCmd.AddCommand(
		serveCmd(opts),
		installCmd(opts),
		uninstallCmd(opts),
		toggleCmd(opts),
		listCmd(opts),
	)
	return rootCmd
}

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.ErrorContext(ctx, "Fatal error", "error", err)
		os.Exit(1)
	}
}
