package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/medvoice/internal/config"
	"github.com/kirillkom/medvoice/internal/core/ports"
	"github.com/kirillkom/medvoice/internal/core/usecase"
	"github.com/kirillkom/medvoice/internal/infrastructure/chunking"
	"github.com/kirillkom/medvoice/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/medvoice/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/medvoice/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/medvoice/internal/infrastructure/llm/langchain"
	"github.com/kirillkom/medvoice/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medvoice/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medvoice/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
	"github.com/kirillkom/medvoice/internal/infrastructure/speech/replicate"
	"github.com/kirillkom/medvoice/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medvoice/internal/infrastructure/storage/miniostore"
)

// claimLeaseMargin covers the terminal state write that follows a job
// timeout.
const claimLeaseMargin = 5 * time.Minute

// App holds the wired services of one process. The object store client is
// built once here and handed to every consumer.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Jobs      ports.JobService
	Runner    *usecase.JobRunner
	Library   ports.AudioLibrary
	Questions ports.QuestionAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	jobTimeout := time.Duration(cfg.WorkerJobTimeoutSeconds) * time.Second
	repo := postgres.NewJobRepository(db).WithClaimLease(jobTimeout + claimLeaseMargin)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	store, err := miniostore.New(miniostore.Config{
		Endpoint:       cfg.MinIOEndpoint,
		PublicEndpoint: cfg.MinIOPublicEndpoint,
		AccessKey:      cfg.MinIOAccessKey,
		SecretKey:      cfg.MinIOSecretKey,
		Secure:         cfg.MinIOSecure,
		Bucket:         cfg.MinIOBucket,
		RetryAttempts:  cfg.StorageRetryAttempts,
		RetryBaseDelay: time.Duration(cfg.StorageRetryBaseDelayMS) * time.Millisecond,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object store: %w", err)
	}

	scratch, err := localfs.New(cfg.ScratchPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init scratch storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               "medvoice",
		ResilienceExecutor: resilience.NewExecutor(resilience.StorageConfig(3, 200*time.Millisecond)).WithLogger(logger),
		Logger:             logger,
		Stream:             cfg.NATSStream,
		Durable:            cfg.NATSDurable,
		AckWait:            jobTimeout + claimLeaseMargin,
		MaxInFlight:        cfg.WorkerConcurrency,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	stager, err := nats.NewObjectStager(queue.Conn(), nats.StagerOptions{
		Bucket: cfg.NATSUploadBucket,
		TTL:    time.Duration(cfg.NATSUploadTTLHours) * time.Hour,
		Logger: logger,
	})
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init upload stager: %w", err)
	}

	completer, generator, err := newLanguageModel(cfg, logger)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	transcriber := replicate.New(replicate.Config{
		BaseURL:      cfg.ReplicateURL,
		APIToken:     cfg.ReplicateAPIToken,
		Version:      cfg.ReplicateWhisperVersion,
		HFToken:      cfg.HuggingFaceToken,
		PollInterval: time.Duration(cfg.ReplicatePollIntervalMS) * time.Millisecond,
		Timeout:      time.Duration(cfg.ReplicateTimeoutSeconds) * time.Second,
	}, logger)

	resolver := usecase.NewInputResolver(store, scratch, logger)
	pipeline := usecase.NewInferencePipeline(store, scratch, transcriber, completer, logger)
	finalizer := usecase.NewArtifactFinalizer(store, scratch, logger)

	jobs := usecase.NewJobSubmitter(repo, queue, stager, logger)
	runner := usecase.NewJobRunner(repo, stager, scratch, resolver, pipeline, finalizer, logger)
	library := usecase.NewAudioLibraryUseCase(store, resolver, xlsx.NewExporter(), logger)
	questions := usecase.NewQueryUseCase(
		store,
		plaintext.NewExtractor(),
		pdf.NewExtractor(int64(cfg.PDFMaxBytes)),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		generator,
		cfg.QADefaultPDF,
		cfg.QATopK,
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Jobs:      jobs,
		Runner:    runner,
		Library:   library,
		Questions: questions,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// newLanguageModel picks the extraction and answering backend.
func newLanguageModel(cfg config.Config, logger *slog.Logger) (ports.Completer, ports.AnswerGenerator, error) {
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	switch cfg.LLMProvider {
	case config.ProviderOllama, "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaModel, timeout, logger)
		return client, ollama.NewGenerator(client), nil
	case config.ProviderOpenAI:
		completer, err := langchain.NewOpenAI(langchain.Config{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: timeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai completer: %w", err)
		}
		return completer, langchain.NewGenerator(completer), nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
