package usecase

import (
	"errors"
	"testing"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

func TestNewStatusViewSuccess(t *testing.T) {
	view := NewStatusView(&domain.Job{
		ID:    "job-1",
		State: domain.JobSuccess,
		Result: &domain.JobResult{
			FileID:           "0f1e2d",
			OutputURL:        "http://minio.local/b/0f1e2d__u1_output.json",
			StructuredOutput: domain.ParseFailure("nope"),
		},
	})
	if view.Status != "SUCCESS" || view.FileID != "0f1e2d" || view.StructuredOutput == nil {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Error != "" || view.ErrorType != "" {
		t.Fatalf("success view must not carry error fields: %+v", view)
	}
}

func TestNewStatusViewFailureClassifiesReason(t *testing.T) {
	storage := domain.WrapError(domain.ErrStorage, "put object", errors.New("down")).Error()
	inference := domain.WrapError(domain.ErrInference, "transcribe audio", errors.New("502")).Error()

	if got := NewStatusView(&domain.Job{State: domain.JobFailure, Error: storage}); got.ErrorType != "storage_error" {
		t.Fatalf("expected storage_error, got %q", got.ErrorType)
	}
	got := NewStatusView(&domain.Job{State: domain.JobFailure, Error: inference})
	if got.Status != "FAILURE" || got.ErrorType != "processing_error" || got.Error != inference {
		t.Fatalf("unexpected view: %+v", got)
	}
	if got.StructuredOutput != nil {
		t.Fatalf("failure view must not carry output")
	}
}

func TestNewStatusViewPending(t *testing.T) {
	got := NewStatusView(&domain.Job{ID: "job-2", State: domain.JobPending})
	if got.Status != "PENDING" || got.FileID != "" || got.Error != "" {
		t.Fatalf("unexpected view: %+v", got)
	}
}
