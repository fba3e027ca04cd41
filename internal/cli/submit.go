package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medvoice/internal/client"
)

var (
	submitOwner     string
	submitExtension string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an audio processing job",
}

var submitUploadCmd = &cobra.Command{
	Use:   "upload <audio-file>",
	Short: "Upload a local recording and process it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accepted, err := apiClient.SubmitUpload(cmd.Context(), submitOwner, args[0])
		return printAccepted(cmd, accepted, err)
	},
}

var submitRefCmd = &cobra.Command{
	Use:   "ref <file-id>",
	Short: "Process audio already in the store, by object key or content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accepted, err := apiClient.SubmitStoredFile(cmd.Context(), submitOwner, args[0], submitExtension)
		return printAccepted(cmd, accepted, err)
	},
}

var submitNameCmd = &cobra.Command{
	Use:   "name <file-name>",
	Short: "Process a raw recording the owner stored earlier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accepted, err := apiClient.SubmitByName(cmd.Context(), submitOwner, args[0])
		return printAccepted(cmd, accepted, err)
	},
}

func init() {
	submitCmd.PersistentFlags().StringVarP(&submitOwner, "owner", "o", "", "owner id")
	submitRefCmd.Flags().StringVar(&submitExtension, "ext", "", "audio extension when file-id is a bare hash (default m4a)")

	submitCmd.AddCommand(submitUploadCmd)
	submitCmd.AddCommand(submitRefCmd)
	submitCmd.AddCommand(submitNameCmd)
}

func printAccepted(cmd *cobra.Command, accepted client.JobAccepted, err error) error {
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", accepted.JobID, accepted.Status)
	return nil
}
