// Package cli provides the medvoicectl command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medvoice/internal/client"
	"github.com/kirillkom/medvoice/internal/config"
)

var (
	serverURL string
	timeout   time.Duration

	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "medvoicectl",
	Short: "Submit consultation recordings and inspect their results",
	Long: `medvoicectl talks to the medvoice API.

Examples:
  medvoicectl submit upload --owner u1 ./visit.m4a
  medvoicectl submit ref --owner u1 0f1e2d
  medvoicectl status --wait 6c1f...
  medvoicectl ask --owner u1 "Which allergies were mentioned?"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if serverURL == "" {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			serverURL = cfg.APIBaseURL
		}
		apiClient = client.New(serverURL, timeout)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("MEDVOICE_API_URL"), "API base URL (default from config API_BASE_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "HTTP timeout per request")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetOutput redirects command output, mainly for tests.
func SetOutput(w io.Writer) {
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)
}

// SetArgs overrides os.Args for the next Execute.
func SetArgs(args []string) {
	rootCmd.SetArgs(args)
}
