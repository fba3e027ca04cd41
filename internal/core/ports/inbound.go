package ports

import (
	"context"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

// JobService is the inbound contract for submitting and polling jobs.
type JobService interface {
	Submit(ctx context.Context, req domain.JobRequest) (*domain.Job, error)
	Status(ctx context.Context, jobID string) (*domain.Job, error)
}

// JobExecutor runs one queued job to a terminal state.
type JobExecutor interface {
	Execute(ctx context.Context, msg domain.JobMessage) error
}

// AudioLibrary manages an owner's stored recordings and derived records.
type AudioLibrary interface {
	StoreRaw(ctx context.Context, ownerID, filename string, data []byte) (domain.StoredObject, error)
	StoreTranscript(ctx context.Context, req domain.TranscriptRequest) (domain.StoredTranscript, error)
	ListAudio(ctx context.Context, ownerID string) ([]domain.AudioListing, error)
	ExportRecords(ctx context.Context, ownerID string) ([]byte, error)
}

// QuestionAnswerer answers questions over an owner's corpus.
type QuestionAnswerer interface {
	Ask(ctx context.Context, q domain.Question) (*domain.Answer, error)
}
