package miniostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

type Config struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Secure         bool
	Bucket         string
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// objectAPI is the subset of the minio client the gateway uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ReadObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

type client struct {
	*minio.Client
}

func (c client) ReadObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	obj, err := c.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Gateway is the object store every artifact goes through. Network calls
// are retried with a doubling delay; exhaustion yields domain.ErrStorage.
type Gateway struct {
	api        objectAPI
	bucket     string
	publicBase *url.URL
	hosts      map[string]struct{}
	exec       *resilience.Executor
	logger     *slog.Logger

	mu      sync.Mutex
	ensured bool
}

func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newGateway(client{mc}, cfg, logger)
}

func newGateway(api objectAPI, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	public := cfg.PublicEndpoint
	if public == "" {
		public = cfg.Endpoint
	}
	base, err := parseBase(public, scheme)
	if err != nil {
		return nil, fmt.Errorf("parse public endpoint: %w", err)
	}

	hosts := map[string]struct{}{base.Host: {}}
	if internal, err := parseBase(cfg.Endpoint, scheme); err == nil && internal.Host != "" {
		hosts[internal.Host] = struct{}{}
	}

	return &Gateway{
		api:        api,
		bucket:     cfg.Bucket,
		publicBase: base,
		hosts:      hosts,
		exec: resilience.NewExecutor(resilience.StorageConfig(cfg.RetryAttempts, cfg.RetryBaseDelay)).
			WithLogger(logger),
		logger: logger,
	}, nil
}

func parseBase(endpoint, scheme string) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = scheme + "://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

func (g *Gateway) Bucket() string {
	return g.bucket
}

func (g *Gateway) PutFile(ctx context.Context, localPath, key string) (string, error) {
	if err := g.ensureBucket(ctx); err != nil {
		return "", err
	}
	err := g.do(ctx, "put_file", key, func(ctx context.Context) error {
		_, err := g.api.FPutObject(ctx, g.bucket, key, localPath, minio.PutObjectOptions{ContentType: ContentType(key)})
		return err
	})
	if err != nil {
		return "", err
	}
	return g.URLFor(key), nil
}

func (g *Gateway) PutBytes(ctx context.Context, data []byte, key string) (string, error) {
	if err := g.ensureBucket(ctx); err != nil {
		return "", err
	}
	err := g.do(ctx, "put_bytes", key, func(ctx context.Context) error {
		_, err := g.api.PutObject(ctx, g.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: ContentType(key)})
		return err
	})
	if err != nil {
		return "", err
	}
	return g.URLFor(key), nil
}

func (g *Gateway) GetToFile(ctx context.Context, key, localPath string) error {
	return g.do(ctx, "get_to_file", key, func(ctx context.Context) error {
		return g.api.FGetObject(ctx, g.bucket, key, localPath, minio.GetObjectOptions{})
	})
}

func (g *Gateway) GetBytes(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := g.do(ctx, "get_bytes", key, func(ctx context.Context) error {
		data, err := g.api.ReadObject(ctx, g.bucket, key)
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	return out, err
}

func (g *Gateway) List(ctx context.Context, prefix string) ([]domain.StoredObject, error) {
	var out []domain.StoredObject
	err := g.do(ctx, "list", prefix, func(ctx context.Context) error {
		out = out[:0]
		for info := range g.api.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if info.Err != nil {
				return info.Err
			}
			out = append(out, domain.StoredObject{
				Key:        info.Key,
				Size:       info.Size,
				ModifiedAt: info.LastModified,
				URL:        g.URLFor(info.Key),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	found := false
	err := g.do(ctx, "exists", key, func(ctx context.Context) error {
		_, err := g.api.StatObject(ctx, g.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			if isNotFound(err) {
				found = false
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (g *Gateway) Delete(ctx context.Context, key string) error {
	return g.do(ctx, "delete", key, func(ctx context.Context) error {
		return g.api.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{})
	})
}

// URLFor is the public URL of key. Each path segment is escaped.
func (g *Gateway) URLFor(key string) string {
	u := *g.publicBase
	u.Path = u.Path + "/" + g.bucket + "/" + key
	u.RawPath = ""
	return u.String()
}

func (g *Gateway) ObjectKeyFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if _, ok := g.hosts[u.Host]; !ok {
		return "", false
	}
	prefix := g.publicBase.Path + "/" + g.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

func (g *Gateway) ensureBucket(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ensured {
		return nil
	}

	err := g.do(ctx, "ensure_bucket", g.bucket, func(ctx context.Context) error {
		exists, err := g.api.BucketExists(ctx, g.bucket)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return g.api.MakeBucket(ctx, g.bucket, minio.MakeBucketOptions{})
	})
	if err != nil {
		return err
	}

	if err := g.api.SetBucketPolicy(ctx, g.bucket, publicReadPolicy(g.bucket)); err != nil {
		g.logger.Warn("bucket_policy_failed", "bucket", g.bucket, "error", err)
	}
	g.ensured = true
	return nil
}

func (g *Gateway) do(ctx context.Context, operation, key string, fn func(context.Context) error) error {
	err := g.exec.Execute(ctx, "storage."+operation, fn, classifyStorageError)
	if err == nil {
		return nil
	}
	op := fmt.Sprintf("storage %s %q", operation, key)
	if isNotFound(err) {
		return domain.WrapError(domain.ErrStorage, op, domain.WrapError(domain.ErrArtifactNotFound, "lookup", err))
	}
	return domain.WrapError(domain.ErrStorage, op, err)
}

func classifyStorageError(err error) resilience.ErrorClassification {
	if isNotFound(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	switch minio.ToErrorResponse(err).Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName", "NoSuchBucketPolicy":
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return true
	}
	return false
}

// ContentType maps known artifact extensions; others are left unset.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	default:
		return ""
	}
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
