package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/ports"
)

// ProcessOutput is what the inference stages produce for one audio file.
type ProcessOutput struct {
	Turns  []domain.TranscriptTurn
	Result domain.ExtractionResult
}

// StageObserver receives per-stage timings.
type StageObserver interface {
	ObserveStage(stage string, duration time.Duration, err error)
}

type noopStageObserver struct{}

func (noopStageObserver) ObserveStage(string, time.Duration, error) {}

// InferencePipeline runs transcription then structured extraction.
// Remote failures are returned as is; retries belong to the adapters.
type InferencePipeline struct {
	store       ports.ObjectStore
	scratch     ports.Scratch
	transcriber ports.Transcriber
	completer   ports.Completer
	sampling    domain.SamplingParams
	observer    StageObserver
	logger      *slog.Logger
}

func NewInferencePipeline(
	store ports.ObjectStore,
	scratch ports.Scratch,
	transcriber ports.Transcriber,
	completer ports.Completer,
	logger *slog.Logger,
) *InferencePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &InferencePipeline{
		store:       store,
		scratch:     scratch,
		transcriber: transcriber,
		completer:   completer,
		sampling:    domain.ExtractionSampling(),
		observer:    noopStageObserver{},
		logger:      logger,
	}
}

// WithObserver attaches stage timing.
func (p *InferencePipeline) WithObserver(observer StageObserver) *InferencePipeline {
	if observer != nil {
		p.observer = observer
	}
	return p
}

func (p *InferencePipeline) Process(ctx context.Context, jobID string, in domain.ResolvedInput) (ProcessOutput, error) {
	turns, err := p.transcribe(ctx, jobID, in)
	if err != nil {
		return ProcessOutput{}, err
	}

	prompt := BuildExtractionPrompt(turns, in.DisplayName)

	start := time.Now()
	raw, err := p.completer.Complete(ctx, prompt, p.sampling)
	p.observer.ObserveStage("extract", time.Since(start), err)
	if err != nil {
		return ProcessOutput{}, inferenceError("extract structured record", err)
	}

	result := ParseExtraction(raw)
	if result.Failed() {
		p.logger.Warn("extraction_parse_failed", "job_id", jobID, "file_id", in.FileID)
	}
	return ProcessOutput{Turns: turns, Result: result}, nil
}

func (p *InferencePipeline) transcribe(ctx context.Context, jobID string, in domain.ResolvedInput) ([]domain.TranscriptTurn, error) {
	src := domain.AudioSource{URL: in.StorageURL}

	if key, ok := p.store.ObjectKeyFromURL(in.StorageURL); ok {
		localPath, err := p.scratch.Path(jobID, "transcribe_"+path.Base(key))
		if err != nil {
			return nil, fmt.Errorf("reserve transcription temp file: %w", err)
		}
		defer func() {
			if err := p.scratch.Remove(localPath); err != nil {
				p.logger.Warn("temp_cleanup_failed", "job_id", jobID, "path", localPath, "error", err)
			}
		}()

		start := time.Now()
		err = p.store.GetToFile(ctx, key, localPath)
		p.observer.ObserveStage("download", time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("download audio for transcription: %w", err)
		}
		src = domain.AudioSource{LocalPath: localPath}
	}

	start := time.Now()
	turns, err := p.transcriber.Transcribe(ctx, src)
	p.observer.ObserveStage("transcribe", time.Since(start), err)
	if err != nil {
		return nil, inferenceError("transcribe audio", err)
	}
	return turns, nil
}

func inferenceError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrInference) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrInference, operation, err)
}
