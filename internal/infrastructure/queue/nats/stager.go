package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

// objectBucket is the part of nats.ObjectStore the stager uses.
type objectBucket interface {
	PutBytes(name string, data []byte, opts ...nats.ObjectOpt) (*nats.ObjectInfo, error)
	GetBytes(name string, opts ...nats.GetObjectOpt) ([]byte, error)
	Delete(name string) error
}

// ObjectStager keeps upload bytes in a JetStream object store between
// submission and execution, so API and workers share no disk.
type ObjectStager struct {
	bucket   objectBucket
	executor *resilience.Executor
	logger   *slog.Logger
}

type StagerOptions struct {
	Bucket   string
	TTL      time.Duration
	Replicas int
	Logger   *slog.Logger
}

func NewObjectStager(conn *nats.Conn, options StagerOptions) (*ObjectStager, error) {
	if options.Bucket == "" {
		options.Bucket = "medvoice-uploads"
	}
	if options.TTL <= 0 {
		options.TTL = 24 * time.Hour
	}
	if options.Replicas <= 0 {
		options.Replicas = 1
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("open jetstream: %w", err)
	}
	bucket, err := js.ObjectStore(options.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) || errors.Is(err, nats.ErrStreamNotFound) {
		bucket, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      options.Bucket,
			Description: "staged audio uploads awaiting processing",
			TTL:         options.TTL,
			Storage:     nats.FileStorage,
			Replicas:    options.Replicas,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open object store %s: %w", options.Bucket, err)
	}
	return newObjectStager(bucket, options.Logger), nil
}

func newObjectStager(bucket objectBucket, logger *slog.Logger) *ObjectStager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectStager{
		bucket:   bucket,
		executor: resilience.NewExecutor(resilience.StorageConfig(3, 200*time.Millisecond)).WithLogger(logger),
		logger:   logger,
	}
}

func (s *ObjectStager) Stage(ctx context.Context, name string, data []byte) error {
	err := s.executor.Execute(ctx, "nats.object_put", func(context.Context) error {
		_, err := s.bucket.PutBytes(name, data)
		return err
	}, classifyNATSError)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "stage upload", err)
	}
	return nil
}

func (s *ObjectStager) Fetch(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.executor.Execute(ctx, "nats.object_get", func(context.Context) error {
		var err error
		data, err = s.bucket.GetBytes(name)
		return err
	}, classifyNATSError)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, domain.WrapError(domain.ErrStorage, "fetch staged upload", domain.WrapError(domain.ErrArtifactNotFound, name, err))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "fetch staged upload", err)
	}
	return data, nil
}

// Discard removes a staged upload. A missing object counts as removed.
func (s *ObjectStager) Discard(ctx context.Context, name string) error {
	err := s.executor.Execute(ctx, "nats.object_delete", func(context.Context) error {
		return s.bucket.Delete(name)
	}, classifyNATSError)
	if err == nil || errors.Is(err, nats.ErrObjectNotFound) {
		return nil
	}
	return domain.WrapError(domain.ErrStorage, "discard staged upload", err)
}
