package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/ports"
)

// JobSubmitter accepts jobs and reports their state. It never runs them.
type JobSubmitter struct {
	repo   ports.JobRepository
	queue  ports.MessageQueue
	stager ports.UploadStager
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewJobSubmitter(
	repo ports.JobRepository,
	queue ports.MessageQueue,
	stager ports.UploadStager,
	logger *slog.Logger,
) *JobSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobSubmitter{
		repo:   repo,
		queue:  queue,
		stager: stager,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Submit validates synchronously; nothing is stored or queued for an
// invalid request.
func (s *JobSubmitter) Submit(ctx context.Context, req domain.JobRequest) (*domain.Job, error) {
	input, err := domain.ParseJobRequest(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	job := &domain.Job{
		ID:        s.newID(),
		Kind:      input.Kind(),
		OwnerID:   ownerOf(input),
		State:     domain.JobPending,
		CreatedAt: now,
	}

	staged := ""
	if upload, ok := input.(domain.UploadedBytes); ok {
		staged = job.ID
		if err := s.stager.Stage(ctx, staged, upload.RawBytes); err != nil {
			return nil, fmt.Errorf("stage upload: %w", err)
		}
	}

	if err := s.repo.Create(ctx, job); err != nil {
		s.discard(ctx, staged)
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.PublishJob(ctx, domain.NewJobMessage(job.ID, input, staged, now)); err != nil {
		publishErr := fmt.Errorf("publish job: %w", err)
		if failErr := s.repo.MarkFailed(ctx, job.ID, publishErr.Error()); failErr != nil {
			s.logger.Error("job_mark_failed_error", "job_id", job.ID, "error", failErr)
		}
		s.discard(ctx, staged)
		return nil, publishErr
	}

	s.logger.Info("job_submitted", "job_id", job.ID, "kind", job.Kind, "owner_id", job.OwnerID)
	return job, nil
}

func (s *JobSubmitter) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	if jobID == "" {
		return nil, domain.Invalid("job status", "job id is required")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *JobSubmitter) discard(ctx context.Context, staged string) {
	if staged == "" {
		return
	}
	if err := s.stager.Discard(ctx, staged); err != nil {
		s.logger.Warn("staged_upload_discard_failed", "staged_object", staged, "error", err)
	}
}

func ownerOf(input domain.JobInput) string {
	switch in := input.(type) {
	case domain.UploadedBytes:
		return in.OwnerID
	case domain.StoredFileRef:
		return in.OwnerID
	case domain.OwnerAndName:
		return in.OwnerID
	}
	return ""
}

// ErrStateNotRecorded marks an Execute failure that left the job pending.
// The message must be delivered again.
var ErrStateNotRecorded = errors.New("job state not recorded")

const defaultTerminalWriteTimeout = 15 * time.Second

// JobRunner executes queued jobs on the worker side.
type JobRunner struct {
	repo         ports.JobRepository
	stager       ports.UploadStager
	scratch      ports.Scratch
	resolver     *InputResolver
	pipeline     *InferencePipeline
	finalizer    *ArtifactFinalizer
	observer     StageObserver
	logger       *slog.Logger
	writeTimeout time.Duration
}

func NewJobRunner(
	repo ports.JobRepository,
	stager ports.UploadStager,
	scratch ports.Scratch,
	resolver *InputResolver,
	pipeline *InferencePipeline,
	finalizer *ArtifactFinalizer,
	logger *slog.Logger,
) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunner{
		repo:         repo,
		stager:       stager,
		scratch:      scratch,
		resolver:     resolver,
		pipeline:     pipeline,
		finalizer:    finalizer,
		observer:     noopStageObserver{},
		logger:       logger,
		writeTimeout: defaultTerminalWriteTimeout,
	}
}

// WithObserver attaches stage timing to the runner and its pipeline.
func (r *JobRunner) WithObserver(observer StageObserver) *JobRunner {
	if observer != nil {
		r.observer = observer
		r.pipeline.WithObserver(observer)
	}
	return r
}

// Execute claims the job and drives it to exactly one terminal state.
// The terminal write outlives the job context, so a job that ran out of
// time is still recorded as failed. A job that already finished is skipped
// without error; one that is claimed but unfinished returns
// ErrStateNotRecorded.
func (r *JobRunner) Execute(ctx context.Context, msg domain.JobMessage) error {
	if err := r.repo.Claim(ctx, msg.JobID); err != nil {
		if domain.IsKind(err, domain.ErrJobNotPending) {
			return r.skip(ctx, msg, err)
		}
		return fmt.Errorf("claim job: %w: %w", err, ErrStateNotRecorded)
	}
	defer r.removeScratch(msg.JobID)

	result, runErr := r.run(ctx, msg)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if runErr != nil {
		r.logger.Error("job_failed", "job_id", msg.JobID, "kind", msg.Kind, "error", runErr)
		if err := r.repo.MarkFailed(writeCtx, msg.JobID, runErr.Error()); err != nil {
			return fmt.Errorf("%w; mark job failed: %v: %w", runErr, err, ErrStateNotRecorded)
		}
		r.discardStaged(writeCtx, msg)
		return runErr
	}

	if err := r.repo.MarkSucceeded(writeCtx, msg.JobID, result); err != nil {
		return fmt.Errorf("mark job succeeded: %w: %w", err, ErrStateNotRecorded)
	}
	r.discardStaged(writeCtx, msg)
	r.logger.Info("job_succeeded",
		"job_id", msg.JobID,
		"file_id", result.FileID,
		"parse_failed", result.StructuredOutput.Failed(),
	)
	return nil
}

func (r *JobRunner) skip(ctx context.Context, msg domain.JobMessage, claimErr error) error {
	job, err := r.repo.GetByID(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("inspect unclaimable job: %w: %w", err, ErrStateNotRecorded)
	}
	if job.State == domain.JobPending {
		r.logger.Info("job_claimed_elsewhere", "job_id", msg.JobID)
		return fmt.Errorf("job %s is running elsewhere: %w", msg.JobID, ErrStateNotRecorded)
	}
	r.logger.Info("job_skipped", "job_id", msg.JobID, "state", job.State, "reason", claimErr.Error())
	r.discardStaged(ctx, msg)
	return nil
}

func (r *JobRunner) removeScratch(jobID string) {
	if err := r.scratch.RemoveJob(jobID); err != nil {
		r.logger.Warn("temp_cleanup_failed", "job_id", jobID, "error", err)
	}
}

// discardStaged drops the upload bytes once the job state is recorded.
// Until then a redelivered message still needs them.
func (r *JobRunner) discardStaged(ctx context.Context, msg domain.JobMessage) {
	if msg.StagedObject == "" {
		return
	}
	if err := r.stager.Discard(ctx, msg.StagedObject); err != nil {
		r.logger.Warn("staged_upload_discard_failed", "job_id", msg.JobID, "error", err)
	}
}

func (r *JobRunner) run(ctx context.Context, msg domain.JobMessage) (domain.JobResult, error) {
	input, err := r.loadInput(ctx, msg)
	if err != nil {
		return domain.JobResult{}, err
	}

	start := time.Now()
	resolved, err := r.resolver.Resolve(ctx, msg.JobID, input)
	r.observer.ObserveStage("resolve", time.Since(start), err)
	if err != nil {
		return domain.JobResult{}, err
	}
	if !resolved.HasDisplayName() {
		r.logger.Info("display_name_absent", "job_id", msg.JobID, "file_id", resolved.FileID)
	}

	out, err := r.pipeline.Process(ctx, msg.JobID, resolved)
	if err != nil {
		return domain.JobResult{}, err
	}

	start = time.Now()
	result, err := r.finalizer.Finalize(ctx, msg.JobID, resolved, out)
	r.observer.ObserveStage("finalize", time.Since(start), err)
	if err != nil {
		return domain.JobResult{}, err
	}
	return result, nil
}

func (r *JobRunner) loadInput(ctx context.Context, msg domain.JobMessage) (domain.JobInput, error) {
	if msg.Kind != domain.JobKindUpload {
		return msg.Input(nil)
	}
	if msg.StagedObject == "" {
		return nil, domain.Invalid("load job input", "upload job %s has no staged object", msg.JobID)
	}

	raw, err := r.stager.Fetch(ctx, msg.StagedObject)
	if err != nil {
		return nil, fmt.Errorf("fetch staged upload: %w", err)
	}
	return msg.Input(raw)
}

// ErrorType classifies a failure reason for polling clients. Reasons are
// stored as text, so the storage kind is matched by its message.
func ErrorType(reason string) string {
	if strings.Contains(reason, domain.ErrStorage.Error()) {
		return "storage_error"
	}
	return "processing_error"
}
