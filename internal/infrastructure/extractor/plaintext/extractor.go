// Package plaintext reads stored transcripts and structured outputs as
// question-answering corpus text.
package plaintext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract flattens JSON objects into "path: value" lines in document order
// and returns other UTF-8 text trimmed. Empty values are dropped.
func (e *Extractor) Extract(_ context.Context, key string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary format: %s", path.Base(key))
	}

	trimmed := bytes.TrimSpace(raw)
	if strings.EqualFold(path.Ext(key), ".json") && json.Valid(trimmed) {
		var lines []string
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := flatten(dec, "", &lines); err != nil {
			return "", fmt.Errorf("flatten %s: %w", path.Base(key), err)
		}
		return strings.Join(lines, "\n"), nil
	}

	return string(trimmed), nil
}

func flatten(dec *json.Decoder, prefix string, lines *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := keyTok.(string)
				if strings.HasPrefix(key, "_") {
					if err := skip(dec); err != nil {
						return err
					}
					continue
				}
				if err := flatten(dec, join(prefix, key), lines); err != nil {
					return err
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if err := flatten(dec, join(prefix, fmt.Sprint(i)), lines); err != nil {
					return err
				}
			}
		}
		_, err := dec.Token()
		return err
	case nil:
		return nil
	default:
		value := strings.TrimSpace(fmt.Sprint(v))
		if value == "" {
			return nil
		}
		if prefix == "" {
			*lines = append(*lines, value)
			return nil
		}
		*lines = append(*lines, prefix+": "+value)
		return nil
	}
}

func skip(dec *json.Decoder) error {
	var discard json.RawMessage
	return dec.Decode(&discard)
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

