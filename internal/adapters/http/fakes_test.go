package httpadapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/medvoice/internal/config"
	"github.com/kirillkom/medvoice/internal/core/domain"
)

type jobServiceFake struct {
	mu        sync.Mutex
	submitted []domain.JobRequest
	job       *domain.Job
	err       error
}

func (f *jobServiceFake) Submit(_ context.Context, req domain.JobRequest) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	input, err := domain.ParseJobRequest(req)
	if err != nil {
		return nil, err
	}
	f.submitted = append(f.submitted, req)
	return &domain.Job{
		ID:        "job-1",
		Kind:      input.Kind(),
		OwnerID:   req.OwnerID,
		State:     domain.JobPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *jobServiceFake) Status(_ context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.job == nil || f.job.ID != jobID {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", errors.New("id="+jobID))
	}
	return f.job, nil
}

type libraryFake struct {
	stored      []string
	transcripts []domain.TranscriptRequest
	listings    []domain.AudioListing
	export      []byte
	err         error
}

func (f *libraryFake) StoreRaw(_ context.Context, ownerID, filename string, data []byte) (domain.StoredObject, error) {
	if f.err != nil {
		return domain.StoredObject{}, f.err
	}
	if ownerID == "" || len(data) == 0 {
		return domain.StoredObject{}, domain.Invalid("store raw audio", "owner and content are required")
	}
	f.stored = append(f.stored, filename)
	return domain.StoredObject{Key: filename, Size: int64(len(data)), URL: "http://minio.local/bucket/" + filename}, nil
}

func (f *libraryFake) StoreTranscript(_ context.Context, req domain.TranscriptRequest) (domain.StoredTranscript, error) {
	if f.err != nil {
		return domain.StoredTranscript{}, f.err
	}
	f.transcripts = append(f.transcripts, req)
	return domain.StoredTranscript{
		FileID:        req.FileID,
		Transcript:    strings.Join(req.Transcript, "\n"),
		TranscriptKey: req.FileID + "__u1_output.txt",
	}, nil
}

func (f *libraryFake) ListAudio(context.Context, string) ([]domain.AudioListing, error) {
	return f.listings, f.err
}

func (f *libraryFake) ExportRecords(context.Context, string) ([]byte, error) {
	return f.export, f.err
}

type questionFake struct {
	questions []domain.Question
	answer    *domain.Answer
	err       error
}

func (f *questionFake) Ask(_ context.Context, q domain.Question) (*domain.Answer, error) {
	f.questions = append(f.questions, q)
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{Text: "ok"}, nil
}

type routerDeps struct {
	jobs      *jobServiceFake
	library   *libraryFake
	questions *questionFake
}

func newTestRouter(cfg config.Config) (*Router, routerDeps) {
	deps := routerDeps{
		jobs:      &jobServiceFake{},
		library:   &libraryFake{},
		questions: &questionFake{},
	}
	return NewRouter(cfg, deps.jobs, deps.library, deps.questions), deps
}
