package usecase

import (
	"encoding/json"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

// ParseExtraction turns raw model output into a record. Output that is not
// a JSON object yields the parse-failure sentinel rather than an error.
func ParseExtraction(raw string) domain.ExtractionResult {
	cleaned := stripCodeFence(raw)

	var record domain.StructuredClinicalRecord
	if err := json.Unmarshal([]byte(cleaned), &record); err != nil {
		return domain.ParseFailure(cleaned)
	}
	return domain.ExtractionResult{Record: &record}
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
