package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

const answerSystemPrompt = `You are assisting a clinician with their patient records. Answer the question based ONLY on the provided context.
If the context doesn't contain enough information to answer the question, say so.`

// Generator answers questions over retrieved chunks with the same model.
type Generator struct {
	completer *Completer
}

func NewGenerator(completer *Completer) *Generator {
	return &Generator{completer: completer}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error) {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		fmt.Fprintf(&contextBuilder, "[%d] %s\n%s\n\n", idx+1, chunk.DocumentKey, chunk.Text)
	}
	prompt := fmt.Sprintf("%s\n\nContext:\n%s\nQuestion: %s\n\nAnswer:", answerSystemPrompt, contextBuilder.String(), question)
	return g.completer.Complete(ctx, prompt, domain.SamplingParams{Temperature: 0.1, TopP: 0.9, MaxTokens: 1024})
}
