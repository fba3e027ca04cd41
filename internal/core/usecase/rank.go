package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

// rankLexical scores chunks by question token overlap, with a small boost
// when the question names the document, and keeps the best limit.
func rankLexical(question string, chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if len(chunks) == 0 {
		return nil
	}
	queryTokens := toTokenSet(question)

	ranked := make([]domain.RetrievedChunk, len(chunks))
	copy(ranked, chunks)
	for i := range ranked {
		overlap := tokenOverlap(queryTokens, toTokenSet(ranked[i].Text))
		keyBoost := documentKeyHit(queryTokens, ranked[i].DocumentKey)
		ranked[i].Score = 0.85*overlap + 0.15*keyBoost
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].DocumentKey != ranked[j].DocumentKey {
			return ranked[i].DocumentKey < ranked[j].DocumentKey
		}
		return ranked[i].ChunkIndex < ranked[j].ChunkIndex
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func documentKeyHit(query map[string]struct{}, key string) float64 {
	if len(query) == 0 || key == "" {
		return 0
	}
	key = strings.ToLower(key)
	for token := range query {
		if len(token) < 3 {
			continue
		}
		if strings.Contains(key, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
