package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mook/componenthost/api"
	"github.com/mook/componenthost/components"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the host with its built-in components",
		Long: `Load the user components, start the built-in components named in the
configuration file, and run until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			h, err := openHost(opts, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			if err := h.registry.Reload(ctx); err != nil {
				slog.WarnContext(ctx, "not all user components could be loaded", "error", err)
			}
			api.Attach(h.registry, h.styles)

			configFile, err := os.Open(opts.config)
			if err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			defer configFile.Close()
			if err := components.LoadConfiguration(ctx, configFile); err != nil {
				return err
			}
			if err := components.StartComponents(ctx); err != nil {
				return err
			}

			if _, err := daemon.SdNotify(true, daemon.SdNotifyReady); err != nil {
				return err
			}

			// Wait for SIGINT / SIGTERM
			slog.InfoContext(ctx, "started; press Ctrl+C to exit")
			<-ctx.Done()

			slog.InfoContext(ctx, "shutting down...")
			return h.registry.Save()
		},
	}
}

func installCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install <file>",
		Short: "Install or update a component",
		Long: `Install a component from a file containing its code, or from standard
input when the file is "-".  Installing a component with the name of an
installed one updates it, keeping its settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var code []byte
			var err error
			if args[0] == "-" {
				code, err = io.ReadAll(cmd.InOrStdin())
			} else {
				code, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read component code: %w", err)
			}
			h, err := openHost(opts, nil)
			if err != nil {
				return err
			}
			result, err := h.registry.Install(cmd.Context(), string(code))
			if err != nil {
				return err
			}
			return report(cmd, result.Message)
		},
	}
}

func uninstallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <name>",
		Short: "Uninstall a component by name or display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHost(opts, nil)
			if err != nil {
				return err
			}
			result, err := h.registry.Uninstall(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report(cmd, result.Message)
		},
	}
}

func toggleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <name>",
		Short: "Enable or disable a component by name or display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHost(opts, nil)
			if err != nil {
				return err
			}
			message, err := h.registry.Toggle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report(cmd, message)
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHost(opts, nil)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tENABLED\tBUILT-IN")
			for _, m := range components.Builtins.List() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", m.Name, m.DisplayName, true, true)
			}
			for _, record := range h.registry.List() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", record.Name(), record.Metadata.DisplayName, record.Settings.Enabled, false)
			}
			return w.Flush()
		},
	}
}

func report(cmd *cobra.Command, message string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), message)
	return err
}
