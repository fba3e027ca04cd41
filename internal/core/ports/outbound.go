package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

// ObjectStore is the bucket every artifact lives in. Put operations return
// the public URL of the written object.
type ObjectStore interface {
	PutFile(ctx context.Context, localPath, key string) (string, error)
	PutBytes(ctx context.Context, data []byte, key string) (string, error)
	GetToFile(ctx context.Context, key, localPath string) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]domain.StoredObject, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	URLFor(key string) string
	// ObjectKeyFromURL reports the key when url points into this store.
	ObjectKeyFromURL(url string) (string, bool)
}

// Scratch holds per-job temporary files on local disk.
type Scratch interface {
	// Path reserves a fresh local path named after name inside the job's directory.
	Path(jobID, name string) (string, error)
	Write(jobID, name string, data io.Reader) (string, error)
	Remove(path string) error
	RemoveJob(jobID string) error
}

// Transcriber turns audio into diarized speaker turns.
type Transcriber interface {
	Transcribe(ctx context.Context, src domain.AudioSource) ([]domain.TranscriptTurn, error)
}

// Completer runs a single prompt completion against a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string, params domain.SamplingParams) (string, error)
}

// JobRepository persists job state. Claim and the terminal transitions
// are conditional on the job still being pending.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	Claim(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, result domain.JobResult) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// MessageQueue carries job messages from the API to workers.
type MessageQueue interface {
	PublishJob(ctx context.Context, msg domain.JobMessage) error
	SubscribeJobs(ctx context.Context, handler func(context.Context, domain.JobMessage) error) error
}

// UploadStager holds upload bytes between submission and execution.
type UploadStager interface {
	Stage(ctx context.Context, name string, data []byte) error
	Fetch(ctx context.Context, name string) ([]byte, error)
	Discard(ctx context.Context, name string) error
}

// Chunker splits text into retrievable chunks.
type Chunker interface {
	Split(text string) []string
}

// TextExtractor turns a stored document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, key string, data []byte) (string, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error)
}

// RecordExporter renders structured records as a spreadsheet.
type RecordExporter interface {
	Export(rows []domain.RecordRow) ([]byte, error)
}
