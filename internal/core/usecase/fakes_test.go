package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
)

const fakeStoreBase = "http://minio.local/medvoice-storage/"

type storeFake struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time

	putErr    error
	getErr    error
	existsLog []string
	listCalls int
	putCalls  int
	getCalls  int
}

func newStoreFake() *storeFake {
	return &storeFake{objects: map[string][]byte{}, modified: map[string]time.Time{}}
}

func (s *storeFake) seed(key string, data []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.modified[key] = modified
}

func (s *storeFake) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCalls + s.getCalls + s.listCalls + len(s.existsLog)
}

func (s *storeFake) PutFile(ctx context.Context, localPath, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	return s.PutBytes(ctx, data, key)
}

func (s *storeFake) PutBytes(_ context.Context, data []byte, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = append([]byte(nil), data...)
	s.modified[key] = time.Now()
	return fakeStoreBase + key, nil
}

func (s *storeFake) GetToFile(ctx context.Context, key, localPath string) error {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o600)
}

func (s *storeFake) GetBytes(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrStorage, "get object", fmt.Errorf("no such key %q", key))
	}
	return data, nil
}

func (s *storeFake) List(_ context.Context, prefix string) ([]domain.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	out := make([]domain.StoredObject, 0, len(s.objects))
	for key, data := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, domain.StoredObject{Key: key, Size: int64(len(data)), ModifiedAt: s.modified[key], URL: fakeStoreBase + key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *storeFake) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsLog = append(s.existsLog, key)
	_, ok := s.objects[key]
	return ok, nil
}

func (s *storeFake) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *storeFake) URLFor(key string) string {
	return fakeStoreBase + key
}

func (s *storeFake) ObjectKeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, fakeStoreBase) {
		return "", false
	}
	return strings.TrimPrefix(url, fakeStoreBase), true
}

func (s *storeFake) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for key := range s.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// seedRecording stores canonical audio for owner and returns its file id.
func (s *storeFake) seedRecording(name, ownerID string, at time.Time) string {
	id := identity.NewIdentity(name, ownerID, "m4a", at)
	s.seed(identity.EncodeIdentity(id), []byte("audio"), at)
	return id.ContentHash
}

type scratchFake struct {
	root      string
	removeErr error
	removed   []string
}

func newScratchFake(t *testing.T) *scratchFake {
	t.Helper()
	return &scratchFake{root: t.TempDir()}
}

func (s *scratchFake) dir(jobID string) (string, error) {
	dir := filepath.Join(s.root, jobID)
	return dir, os.MkdirAll(dir, 0o755)
}

func (s *scratchFake) Path(jobID, name string) (string, error) {
	dir, err := s.dir(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}

func (s *scratchFake) Write(jobID, name string, data io.Reader) (string, error) {
	p, err := s.Path(jobID, name)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	return p, os.WriteFile(p, raw, 0o600)
}

func (s *scratchFake) Remove(path string) error {
	s.removed = append(s.removed, path)
	if s.removeErr != nil {
		return s.removeErr
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *scratchFake) RemoveJob(jobID string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return os.RemoveAll(filepath.Join(s.root, jobID))
}

func (s *scratchFake) files(t *testing.T) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk scratch: %v", err)
	}
	return out
}

type transcriberFake struct {
	turns   []domain.TranscriptTurn
	err     error
	calls   int
	sources []domain.AudioSource
	seen    []bool
	// block holds Transcribe until the caller's context is done.
	block bool
}

func (f *transcriberFake) Transcribe(ctx context.Context, src domain.AudioSource) ([]domain.TranscriptTurn, error) {
	f.calls++
	f.sources = append(f.sources, src)
	if src.IsLocal() {
		_, err := os.Stat(src.LocalPath)
		f.seen = append(f.seen, err == nil)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

type completerFake struct {
	output  string
	err     error
	calls   int
	prompts []string
	params  []domain.SamplingParams
}

func (f *completerFake) Complete(_ context.Context, prompt string, params domain.SamplingParams) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type jobRepoFake struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	createErr   error
	finishErr   error
	createCalls int
	claims      int
	failed      []string
}

func newJobRepoFake() *jobRepoFake {
	return &jobRepoFake{jobs: map[string]*domain.Job{}}
}

func (f *jobRepoFake) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	copyJob := *job
	f.jobs[job.ID] = &copyJob
	return nil
}

func (f *jobRepoFake) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", id))
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *jobRepoFake) Claim(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "claim job", fmt.Errorf("id=%s", id))
	}
	if job.State != domain.JobPending || job.StartedAt != nil {
		return domain.WrapError(domain.ErrJobNotPending, "claim job", fmt.Errorf("id=%s", id))
	}
	now := time.Now()
	job.StartedAt = &now
	return nil
}

func (f *jobRepoFake) MarkSucceeded(ctx context.Context, id string, result domain.JobResult) error {
	return f.finish(ctx, id, func(job *domain.Job) {
		job.State = domain.JobSuccess
		job.Result = &result
	})
}

func (f *jobRepoFake) MarkFailed(ctx context.Context, id string, reason string) error {
	f.mu.Lock()
	f.failed = append(f.failed, reason)
	f.mu.Unlock()
	return f.finish(ctx, id, func(job *domain.Job) {
		job.State = domain.JobFailure
		job.Error = reason
	})
}

// finish fails on a done context the way a database driver does.
func (f *jobRepoFake) finish(ctx context.Context, id string, apply func(*domain.Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "finish job", fmt.Errorf("id=%s", id))
	}
	if job.State != domain.JobPending {
		return domain.WrapError(domain.ErrJobNotPending, "finish job", fmt.Errorf("id=%s", id))
	}
	apply(job)
	now := time.Now()
	job.FinishedAt = &now
	return nil
}

type queueFake struct {
	published  []domain.JobMessage
	publishErr error
}

func (f *queueFake) PublishJob(_ context.Context, msg domain.JobMessage) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *queueFake) SubscribeJobs(context.Context, func(context.Context, domain.JobMessage) error) error {
	return nil
}

type stagerFake struct {
	objects   map[string][]byte
	stageErr  error
	calls     int
	discarded []string
}

func newStagerFake() *stagerFake {
	return &stagerFake{objects: map[string][]byte{}}
}

func (f *stagerFake) Stage(_ context.Context, name string, data []byte) error {
	f.calls++
	if f.stageErr != nil {
		return f.stageErr
	}
	f.objects[name] = append([]byte(nil), data...)
	return nil
}

func (f *stagerFake) Fetch(_ context.Context, name string) ([]byte, error) {
	f.calls++
	data, ok := f.objects[name]
	if !ok {
		return nil, domain.WrapError(domain.ErrStorage, "fetch staged", fmt.Errorf("missing %s", name))
	}
	return data, nil
}

func (f *stagerFake) Discard(_ context.Context, name string) error {
	f.calls++
	f.discarded = append(f.discarded, name)
	delete(f.objects, name)
	return nil
}

const validRecordJSON = `{
	"patient_name": "visit",
	"patient_dob": "",
	"patient_gender": "Female",
	"Demographics_of_patient": {"Marital_status": "", "Ethnicity": "", "Occupation": "Teacher"},
	"Past_medical_history": {"Medical_history": "Asthma", "Surgical_history": ""},
	"Current_medications_and_drug_allergies": {"Drug_allergy": "Penicillin", "Prescribed_medications": "", "Recently_prescribed_medications": ""},
	"Mental_state_examination": {"Appearance_and_behavior": "", "Speech_and_thoughts": "", "Mood": "Calm", "Thoughts": ""},
	"Physical_examination": {"Blood_pressure": "120/80", "Pulse_rate": 72, "Temperature": null},
	"note": ""
}`

func sampleTurns() []domain.TranscriptTurn {
	return []domain.TranscriptTurn{
		{Speaker: "SPEAKER_00", Text: "How are you feeling today?", Start: 0, End: 1.5},
		{Speaker: "SPEAKER_01", Text: "My chest feels tight.", Start: 1.6, End: 3.2},
	}
}
