package usecase

import (
	"testing"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

func TestRankLexicalOrdersByOverlapAndTrims(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{DocumentKey: "a_output.json", ChunkIndex: 0, Text: "Pulse_rate: 72"},
		{DocumentKey: "b_output.json", ChunkIndex: 0, Text: "Drug_allergy: Penicillin"},
		{DocumentKey: "b_output.json", ChunkIndex: 1, Text: "Patient reports a penicillin allergy and rash"},
	}

	got := rankLexical("Which patient has a penicillin allergy?", chunks, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].DocumentKey != "b_output.json" || got[0].ChunkIndex != 1 {
		t.Fatalf("unexpected top chunk: %+v", got[0])
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("expected descending scores, got %v then %v", got[0].Score, got[1].Score)
	}
	if chunks[2].Score != 0 {
		t.Fatalf("input chunks must not be mutated")
	}
}

func TestRankLexicalBoostsNamedDocument(t *testing.T) {
	chunks := []domain.RetrievedChunk{
		{DocumentKey: "fileA__owner_output.json", Text: "mood calm"},
		{DocumentKey: "fileB_maria_owner_output.json", Text: "mood calm"},
	}

	got := rankLexical("How was maria's mood?", chunks, 0)
	if got[0].DocumentKey != "fileB_maria_owner_output.json" {
		t.Fatalf("expected named document first, got %+v", got)
	}
}

func TestRankLexicalEmpty(t *testing.T) {
	if got := rankLexical("anything", nil, 5); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestSplitAlphaNumLower(t *testing.T) {
	got := splitAlphaNumLower("BP 120/80, Temp: 36.6")
	want := []string{"bp", "120", "80", "temp", "36", "6"}
	if len(got) != len(want) {
		t.Fatalf("unexpected tokens: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, got[i], want[i])
		}
	}
}
