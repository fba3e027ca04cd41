package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.RetrievedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] source=%s score=%.3f\n%s\n\n",
			idx+1,
			chunk.DocumentKey,
			chunk.Score,
			chunk.Text,
		))
	}

	return fmt.Sprintf(`You are assisting a clinician with their patient records.
Answer the question only from the context below.
If the context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
