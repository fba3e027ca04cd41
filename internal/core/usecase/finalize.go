package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
	"github.com/kirillkom/medvoice/internal/core/ports"
)

const outputIndent = "    "

// ArtifactFinalizer persists the structured output and transcript of a job.
// The stored source audio is never touched.
type ArtifactFinalizer struct {
	store   ports.ObjectStore
	scratch ports.Scratch
	logger  *slog.Logger
}

func NewArtifactFinalizer(store ports.ObjectStore, scratch ports.Scratch, logger *slog.Logger) *ArtifactFinalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactFinalizer{store: store, scratch: scratch, logger: logger}
}

func (f *ArtifactFinalizer) Finalize(ctx context.Context, jobID string, in domain.ResolvedInput, out ProcessOutput) (domain.JobResult, error) {
	payload, err := MarshalOutput(out.Result)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("serialize structured output: %w", err)
	}

	outputKey := identity.OutputKey(in.FileID, in.DisplayName, in.OwnerID)
	outputURL, err := f.upload(ctx, jobID, outputKey, payload)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("store structured output: %w", err)
	}

	transcriptKey := identity.TranscriptKey(in.FileID, in.DisplayName, in.OwnerID)
	transcriptURL, err := f.upload(ctx, jobID, transcriptKey, []byte(RenderTranscript(out.Turns)))
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("store transcript: %w", err)
	}

	return domain.JobResult{
		FileID:           in.FileID,
		DisplayName:      in.DisplayName,
		OutputURL:        outputURL,
		TranscriptURL:    transcriptURL,
		StructuredOutput: out.Result,
	}, nil
}

func (f *ArtifactFinalizer) upload(ctx context.Context, jobID, key string, data []byte) (string, error) {
	localPath, err := f.scratch.Write(jobID, key, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s to scratch: %w", key, err)
	}
	defer func() {
		if err := f.scratch.Remove(localPath); err != nil {
			f.logger.Warn("temp_cleanup_failed", "job_id", jobID, "path", localPath, "error", err)
		}
	}()
	return f.store.PutFile(ctx, localPath, key)
}

// MarshalOutput renders an extraction result as 4-space indented JSON.
func MarshalOutput(result domain.ExtractionResult) ([]byte, error) {
	return json.MarshalIndent(result, "", outputIndent)
}
