package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
)

type extractorFake struct {
	prefix string
	err    error
	keys   []string
}

func (f *extractorFake) Extract(_ context.Context, key string, data []byte) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return f.prefix + string(data), nil
}

type chunkerFake struct{}

func (chunkerFake) Split(text string) []string {
	return strings.Split(text, "\n")
}

type generatorFake struct {
	question string
	chunks   []domain.RetrievedChunk
	err      error
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, chunks []domain.RetrievedChunk) (string, error) {
	f.question = question
	f.chunks = chunks
	if f.err != nil {
		return "", f.err
	}
	return "answer", nil
}

func TestAskTranscriptsRanksOwnerChunks(t *testing.T) {
	store := newStoreFake()
	now := time.Now()
	h1 := store.seedRecording("Jane", "u1", now)
	h2 := store.seedRecording("Bob", "u2", now)
	h3 := store.seedRecording("Ann", "x_u1", now)
	store.seed(identity.OutputKey(h1, "Jane", "u1"), []byte("Drug allergy: penicillin\nMood: calm"), now)
	store.seed(identity.OutputKey(h2, "Bob", "u2"), []byte("Drug allergy: latex"), now)
	store.seed(identity.OutputKey(h3, "Ann", "x_u1"), []byte("Drug allergy: penicillin"), now)
	store.seed("unrelated.pdf", []byte("penicillin allergy guide"), now)

	transcripts := &extractorFake{}
	generator := &generatorFake{}
	uc := NewQueryUseCase(store, transcripts, &extractorFake{}, chunkerFake{}, generator, "", 1)

	answer, err := uc.Ask(context.Background(), domain.Question{OwnerID: "u1", Text: "Which drug allergy?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.Text != "answer" || len(answer.Sources) != 1 {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if answer.Sources[0].Text != "Drug allergy: penicillin" {
		t.Fatalf("expected best matching chunk, got %+v", answer.Sources[0])
	}
	if len(transcripts.keys) != 1 || transcripts.keys[0] != identity.OutputKey(h1, "Jane", "u1") {
		t.Fatalf("expected only owner outputs read, got %v", transcripts.keys)
	}
}

func TestAskPDFUsesDocumentKey(t *testing.T) {
	store := newStoreFake()
	store.seed("guides/covid.pdf", []byte("Masks reduce transmission"), time.Now())
	documents := &extractorFake{}
	uc := NewQueryUseCase(store, &extractorFake{}, documents, chunkerFake{}, &generatorFake{}, "", 0)

	answer, err := uc.Ask(context.Background(), domain.Question{Text: "masks?", Source: domain.CorpusPDF, DocumentKey: "guides/covid.pdf"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(documents.keys) != 1 || answer.Sources[0].DocumentKey != "guides/covid.pdf" {
		t.Fatalf("unexpected pdf read %v %+v", documents.keys, answer.Sources)
	}
}

func TestAskValidation(t *testing.T) {
	uc := NewQueryUseCase(newStoreFake(), &extractorFake{}, &extractorFake{}, chunkerFake{}, &generatorFake{}, "", 0)
	cases := []domain.Question{
		{OwnerID: "u1", Text: "  "},
		{Text: "question"},
		{Text: "question", Source: domain.CorpusPDF},
		{OwnerID: "u1", Text: "question", Source: "audio"},
	}
	for i, q := range cases {
		if _, err := uc.Ask(context.Background(), q); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestAskGeneratorFailure(t *testing.T) {
	uc := NewQueryUseCase(newStoreFake(), &extractorFake{}, &extractorFake{}, chunkerFake{}, &generatorFake{err: errors.New("down")}, "", 0)
	_, err := uc.Ask(context.Background(), domain.Question{OwnerID: "u1", Text: "q"})
	if !domain.IsKind(err, domain.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
}

func TestRankLexicalOrdersByOverlap(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{DocumentKey: "a", ChunkIndex: 0, Text: "blood pressure normal"},
		{DocumentKey: "a", ChunkIndex: 1, Text: "patient blood pressure 120/80 recorded"},
		{DocumentKey: "b", ChunkIndex: 0, Text: "unrelated"},
	}
	ranked := rankLexical("What was the blood pressure recorded?", chunks, 2)
	if len(ranked) != 2 || ranked[0].ChunkIndex != 1 {
		t.Fatalf("unexpected ranking %+v", ranked)
	}
}
