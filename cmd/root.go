// Package cmd defines the CLI commands for the renec-harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// appKeyType is the key for storing the app in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd creates and configures the root command. The application is
// built once in PersistentPreRunE and handed to subcommands through the
// context, so every command sees the same wired services.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renec-harvester",
		Short: "Concurrent harvester for the RENEC competency-standard registry.",
		Long: `renec-harvester walks the CONOCER RENEC portal, extracting competency
standards, certifiers, evaluation centers and productive sectors through a
resilient fetch pipeline, and forwards normalized records to the configured
sink.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults apply when omitted)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newSiteMapCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}
