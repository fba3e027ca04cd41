package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medvoice/internal/client"
)

var (
	statusWait     bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "poll until the job is terminal")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 2*time.Second, "poll interval with --wait")
}

func runStatus(cmd *cobra.Command, args []string) error {
	var (
		status client.JobStatus
		err    error
	)
	if statusWait {
		status, err = apiClient.WaitForJob(cmd.Context(), args[0], statusInterval)
	} else {
		status, err = apiClient.Status(cmd.Context(), args[0])
	}
	if err != nil {
		return fmt.Errorf("job status: %w", err)
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if status.Status == client.StatusFailure {
		return fmt.Errorf("job %s failed (%s)", status.JobID, status.ErrorType)
	}
	return nil
}
