package replicate

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

type segment struct {
	Speaker   string     `json:"speaker"`
	Text      string     `json:"text"`
	Start     *float64   `json:"start"`
	End       *float64   `json:"end"`
	Timestamp []*float64 `json:"timestamp"`
}

func (s segment) bounds() (float64, float64) {
	var start, end float64
	if s.Start != nil {
		start = *s.Start
	} else if len(s.Timestamp) > 0 && s.Timestamp[0] != nil {
		start = *s.Timestamp[0]
	}
	if s.End != nil {
		end = *s.End
	} else if len(s.Timestamp) > 1 && s.Timestamp[1] != nil {
		end = *s.Timestamp[1]
	}
	if end < start {
		end = start
	}
	return start, end
}

// ParseOutput accepts the diarized "speakers" list, the "segments" or
// "chunks" lists, or a bare array of segments. A plain "text" output
// becomes a single turn without a speaker.
func ParseOutput(raw json.RawMessage) ([]domain.TranscriptTurn, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, errors.New("empty transcription output")
	}

	var segments []segment
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &segments); err != nil {
			return nil, err
		}
		return toTurns(segments), nil
	}

	var envelope struct {
		Speakers []segment `json:"speakers"`
		Segments []segment `json:"segments"`
		Chunks   []segment `json:"chunks"`
		Text     string    `json:"text"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	switch {
	case len(envelope.Speakers) > 0:
		segments = envelope.Speakers
	case len(envelope.Segments) > 0:
		segments = envelope.Segments
	case len(envelope.Chunks) > 0:
		segments = envelope.Chunks
	case strings.TrimSpace(envelope.Text) != "":
		return []domain.TranscriptTurn{{Text: strings.TrimSpace(envelope.Text)}}, nil
	default:
		return nil, errors.New("transcription output has no segments")
	}
	return toTurns(segments), nil
}

func toTurns(segments []segment) []domain.TranscriptTurn {
	turns := make([]domain.TranscriptTurn, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start, end := seg.bounds()
		turns = append(turns, domain.TranscriptTurn{
			Speaker: strings.TrimSpace(seg.Speaker),
			Text:    text,
			Start:   start,
			End:     end,
		})
	}
	return turns
}
