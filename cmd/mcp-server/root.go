package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/diapredict/diapredict/internal/bootstrap"
	"github.com/diapredict/diapredict/internal/mcp"
	"github.com/diapredict/diapredict/internal/setup"
)

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "diapredict-mcp",
		Short: "Serve diabetes risk predictions as an MCP tool over stdio",
		Long: "Starts an MCP server on stdin/stdout exposing the " + mcp.PredictToolName + " tool. " +
			"Logs go to stderr.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Version:      bootstrap.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.New(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = app.Close(flushCtx)
			}()

			server := mcp.NewServer(app.Predictor, app.Logger, bootstrap.Version)
			return server.Run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/diapredict/config.yaml)")

	rootCmd.AddCommand(newInstallCmd(), newUninstallCmd(), newStatusCmd())
	return rootCmd
}

// clientConfigPath returns the override or the platform default
func clientConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return setup.DesktopConfigPath()
}

func newInstallCmd() *cobra.Command {
	var (
		clientConfig string
		opts         setup.Options
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register this server with the desktop MCP client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := clientConfigPath(clientConfig)
			if err != nil {
				return err
			}
			entry, err := setup.Install(path, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %q in %s\n", setup.ServerKey, path)
			fmt.Fprintf(out, "  command: %s\n", entry.Command)
			for _, a := range entry.Args {
				fmt.Fprintf(out, "  arg: %s\n", a)
			}
			fmt.Fprintln(out, "Restart the client to pick up the change. Provider API keys are read from the environment or the config file.")
			return nil
		},
	}

	cmd.Flags().StringVar(&clientConfig, "client-config", "", "client configuration file (default: platform location)")
	cmd.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to this executable (default: search PATH)")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "diapredict config file passed to the server")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "AI provider override (gemini or anthropic)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "AI model override")
	return cmd
}

func newUninstallCmd() *cobra.Command {
	var clientConfig string

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove this server from the desktop MCP client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := clientConfigPath(clientConfig)
			if err != nil {
				return err
			}
			removed, err := setup.Uninstall(path)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q from %s\n", setup.ServerKey, path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%q was not registered in %s\n", setup.ServerKey, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clientConfig, "client-config", "", "client configuration file (default: platform location)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var clientConfig string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the desktop client registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := clientConfigPath(clientConfig)
			if err != nil {
				return err
			}
			status, err := setup.Check(path)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			if len(status.Issues) > 0 {
				return fmt.Errorf("%d issue(s) found", len(status.Issues))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clientConfig, "client-config", "", "client configuration file (default: platform location)")
	return cmd
}

func printStatus(w io.Writer, status *setup.Status) {
	fmt.Fprintf(w, "Client config: %s\n", status.ConfigPath)
	fmt.Fprintf(w, "Registered:    %t\n", status.Registered)
	if status.Registered {
		fmt.Fprintf(w, "Command:       %s\n", status.Server.Command)
	}
	for _, issue := range status.Issues {
		fmt.Fprintf(w, "  ! %s\n", issue)
	}
}
