// Package pdf extracts plain text from reference PDF documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Extractor struct {
	maxBytes int64
}

// NewExtractor caps the extracted text at maxBytes; zero means no cap.
func NewExtractor(maxBytes int64) *Extractor {
	return &Extractor{maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, key string, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		return "", fmt.Errorf("%s is not a pdf document", path.Base(key))
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path.Base(key), err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path.Base(key), err)
	}
	if e.maxBytes > 0 {
		plain = io.LimitReader(plain, e.maxBytes)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path.Base(key), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
