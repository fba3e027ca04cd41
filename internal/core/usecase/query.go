package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
	"github.com/kirillkom/medvoice/internal/core/ports"
)

const defaultAnswerLimit = 5

// QueryUseCase answers questions over an owner's processed transcripts or a
// reference PDF stored in the bucket.
type QueryUseCase struct {
	store       ports.ObjectStore
	transcripts ports.TextExtractor
	documents   ports.TextExtractor
	chunker     ports.Chunker
	generator   ports.AnswerGenerator
	defaultPDF  string
	limit       int
}

func NewQueryUseCase(
	store ports.ObjectStore,
	transcripts ports.TextExtractor,
	documents ports.TextExtractor,
	chunker ports.Chunker,
	generator ports.AnswerGenerator,
	defaultPDF string,
	limit int,
) *QueryUseCase {
	if limit <= 0 {
		limit = defaultAnswerLimit
	}
	return &QueryUseCase{
		store:       store,
		transcripts: transcripts,
		documents:   documents,
		chunker:     chunker,
		generator:   generator,
		defaultPDF:  defaultPDF,
		limit:       limit,
	}
}

func (uc *QueryUseCase) Ask(ctx context.Context, q domain.Question) (*domain.Answer, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, domain.Invalid("ask", "question is required")
	}
	if q.Source == "" {
		q.Source = domain.CorpusTranscripts
	}
	limit := q.Limit
	if limit <= 0 {
		limit = uc.limit
	}

	docs, err := uc.loadCorpus(ctx, q)
	if err != nil {
		return nil, err
	}

	var candidates []domain.RetrievedChunk
	for _, doc := range docs {
		for i, text := range uc.chunker.Split(doc.Text) {
			candidates = append(candidates, domain.RetrievedChunk{DocumentKey: doc.Key, ChunkIndex: i, Text: text})
		}
	}
	chunks := rankLexical(q.Text, candidates, limit)

	answerText, err := uc.generator.GenerateAnswer(ctx, q.Text, chunks)
	if err != nil {
		return nil, inferenceError("generate answer", err)
	}

	return &domain.Answer{
		Text:    answerText,
		Sources: chunks,
	}, nil
}

func (uc *QueryUseCase) loadCorpus(ctx context.Context, q domain.Question) ([]domain.CorpusDocument, error) {
	switch q.Source {
	case domain.CorpusTranscripts:
		return uc.loadTranscripts(ctx, q.OwnerID)
	case domain.CorpusPDF:
		key := strings.TrimSpace(q.DocumentKey)
		if key == "" {
			key = uc.defaultPDF
		}
		if key == "" {
			return nil, domain.Invalid("ask", "document_key is required for pdf source")
		}
		doc, err := uc.loadDocument(ctx, uc.documents, key)
		if err != nil {
			return nil, err
		}
		return []domain.CorpusDocument{doc}, nil
	default:
		return nil, domain.Invalid("ask", "unsupported source %q", q.Source)
	}
}

func (uc *QueryUseCase) loadTranscripts(ctx context.Context, ownerID string) ([]domain.CorpusDocument, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Invalid("ask", "owner id is required for transcript source")
	}
	objects, err := uc.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	owned := identity.NewOwnerOutputs(ownerID, objects)
	var docs []domain.CorpusDocument
	for _, obj := range objects {
		if _, _, ok := owned.ParseOutputKey(obj.Key); !ok {
			continue
		}
		doc, err := uc.loadDocument(ctx, uc.transcripts, obj.Key)
		if err != nil {
			return nil, err
		}
		if doc.Text != "" {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (uc *QueryUseCase) loadDocument(ctx context.Context, extractor ports.TextExtractor, key string) (domain.CorpusDocument, error) {
	raw, err := uc.store.GetBytes(ctx, key)
	if err != nil {
		return domain.CorpusDocument{}, fmt.Errorf("read corpus document %q: %w", key, err)
	}
	text, err := extractor.Extract(ctx, key, raw)
	if err != nil {
		return domain.CorpusDocument{}, fmt.Errorf("extract corpus document %q: %w", key, err)
	}
	return domain.CorpusDocument{Key: key, Text: text}, nil
}
