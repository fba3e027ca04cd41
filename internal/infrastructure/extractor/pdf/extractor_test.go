package pdf

import (
	"context"
	"strings"
	"testing"
)

func TestExtractRejectsNonPDF(t *testing.T) {
	_, err := NewExtractor(0).Extract(context.Background(), "docs/guide.pdf", []byte("plain text"))
	if err == nil || !strings.Contains(err.Error(), "guide.pdf is not a pdf") {
		t.Fatalf("expected not-a-pdf error, got %v", err)
	}
}

func TestExtractRejectsTruncatedPDF(t *testing.T) {
	_, err := NewExtractor(0).Extract(context.Background(), "guide.pdf", []byte("%PDF-1.4\n%%EOF"))
	if err == nil {
		t.Fatalf("expected error for truncated pdf")
	}
}

func TestExtractHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewExtractor(0).Extract(ctx, "guide.pdf", []byte("%PDF-1.4")); err == nil {
		t.Fatalf("expected context error")
	}
}
