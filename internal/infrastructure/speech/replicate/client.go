// Package replicate transcribes and diarizes audio with a Whisper model
// hosted on the Replicate predictions API.
package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://api.replicate.com/v1"
	// DefaultVersion is incredibly-fast-whisper with diarization support.
	DefaultVersion = "3ab86df6c8f54c11309d4d1f930ac292bad43ace52d10c80d87eb258b3c9f79c"
)

type Config struct {
	BaseURL      string
	APIToken     string
	Version      string
	HFToken      string
	PollInterval time.Duration
	Timeout      time.Duration
}

type Transcriber struct {
	cfg        Config
	httpClient *http.Client
	// executor guards calls that start paid work; poller retries status reads.
	executor *resilience.Executor
	poller   *resilience.Executor
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Transcriber{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   resilience.NewExecutor(resilience.InferenceConfig()).WithLogger(logger),
		poller:     resilience.NewExecutor(resilience.PollingConfig()).WithLogger(logger),
		logger:     logger,
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

type uploadedFile struct {
	ID   string `json:"id"`
	URLs struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (t *Transcriber) Transcribe(ctx context.Context, src domain.AudioSource) ([]domain.TranscriptTurn, error) {
	audio, cleanup, err := t.audioInput(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	request := map[string]any{
		"version": t.cfg.Version,
		"input": map[string]any{
			"task":          "transcribe",
			"audio":         audio,
			"hf_token":      t.cfg.HFToken,
			"language":      "None",
			"timestamp":     "word",
			"batch_size":    64,
			"diarise_audio": true,
		},
	}

	var pred prediction
	err = t.executor.Execute(ctx, "replicate.create_prediction", func(callCtx context.Context) error {
		return t.do(callCtx, http.MethodPost, t.cfg.BaseURL+"/predictions", request, &pred, "create prediction")
	}, classifyReplicateError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("replicate create prediction", err)
	}
	t.logger.Info("transcription_started", "prediction_id", pred.ID, "status", pred.Status, "source", src.String())

	pred, err = t.wait(ctx, pred)
	if err != nil {
		return nil, err
	}
	if pred.Status != "succeeded" {
		return nil, fmt.Errorf("replicate prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	}

	turns, err := ParseOutput(pred.Output)
	if err != nil {
		return nil, fmt.Errorf("parse transcription output: %w", err)
	}
	return turns, nil
}

func (t *Transcriber) wait(ctx context.Context, pred prediction) (prediction, error) {
	for !pred.terminal() {
		if pred.URLs.Get == "" {
			return pred, fmt.Errorf("replicate prediction %s has no poll url", pred.ID)
		}
		timer := time.NewTimer(t.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pred, ctx.Err()
		case <-timer.C:
		}

		next := prediction{}
		err := t.poller.Execute(ctx, "replicate.get_prediction", func(callCtx context.Context) error {
			return t.do(callCtx, http.MethodGet, pred.URLs.Get, nil, &next, "get prediction")
		}, classifyReplicateError)
		if err != nil {
			return pred, wrapTemporaryIfNeeded("replicate get prediction", err)
		}
		if next.URLs.Get == "" {
			next.URLs.Get = pred.URLs.Get
		}
		pred = next
	}
	return pred, nil
}

// audioInput returns the URL as is or uploads a local file to the files
// API and returns its URL. cleanup deletes the uploaded copy.
func (t *Transcriber) audioInput(ctx context.Context, src domain.AudioSource) (string, func(), error) {
	noop := func() {}
	if !src.IsLocal() {
		if strings.TrimSpace(src.URL) == "" {
			return "", noop, domain.Invalid("transcribe audio", "audio source is empty")
		}
		return src.URL, noop, nil
	}
	if _, err := os.Stat(src.LocalPath); err != nil {
		return "", noop, fmt.Errorf("read local audio: %w", err)
	}

	var file uploadedFile
	err := t.executor.Execute(ctx, "replicate.upload_file", func(callCtx context.Context) error {
		return t.upload(callCtx, src.LocalPath, audioContentType(src.LocalPath), &file)
	}, classifyReplicateError)
	if err != nil {
		return "", noop, wrapTemporaryIfNeeded("replicate upload file", err)
	}
	if file.URLs.Get == "" {
		return "", noop, fmt.Errorf("replicate file %s has no url", file.ID)
	}
	t.logger.Info("audio_uploaded", "file_id", file.ID, "source", src.String())

	cleanup := func() {
		deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := t.do(deleteCtx, http.MethodDelete, file.URLs.Get, nil, nil, "delete file"); err != nil {
			t.logger.Warn("replicate_file_delete_failed", "file_id", file.ID, "error", err)
		}
	}
	return file.URLs.Get, cleanup, nil
}

var audioTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

func audioContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if contentType, ok := audioTypes[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}
