package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medvoice/internal/client"
)

var (
	askOwner    string
	askSource   string
	askDocument string
	askLimit    int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over an owner's transcripts or a reference PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, err := apiClient.Ask(cmd.Context(), askOwner, client.AskRequest{
			Question:    strings.Join(args, " "),
			Source:      askSource,
			DocumentKey: askDocument,
			Limit:       askLimit,
		})
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, answer.Response)
		if len(answer.Sources) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Sources:")
			for _, src := range answer.Sources {
				fmt.Fprintf(w, "  %s #%d (%.3f)\n", src.DocumentKey, src.ChunkIndex, src.Score)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askOwner, "owner", "o", "", "owner id")
	askCmd.Flags().StringVar(&askSource, "source", "transcripts", "corpus: transcripts or pdf")
	askCmd.Flags().StringVar(&askDocument, "document", "", "PDF object key when --source=pdf")
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 0, "max chunks used for the answer")
}
