package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
	"github.com/kirillkom/medvoice/internal/core/ports"
)

// InputResolver converges every job input to a stored canonical object.
type InputResolver struct {
	store   ports.ObjectStore
	scratch ports.Scratch
	logger  *slog.Logger
	now     func() time.Time
}

func NewInputResolver(store ports.ObjectStore, scratch ports.Scratch, logger *slog.Logger) *InputResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputResolver{
		store:   store,
		scratch: scratch,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *InputResolver) Resolve(ctx context.Context, jobID string, input domain.JobInput) (domain.ResolvedInput, error) {
	switch in := input.(type) {
	case domain.UploadedBytes:
		return r.resolveUpload(ctx, jobID, in.OwnerID, in.OriginalFilename, in.RawBytes)
	case domain.StoredFileRef:
		return r.resolveStoredRef(ctx, in)
	case domain.OwnerAndName:
		return r.resolveOwnerFile(ctx, jobID, in)
	default:
		return domain.ResolvedInput{}, domain.Invalid("resolve input", "unsupported job input %T", input)
	}
}

func (r *InputResolver) resolveUpload(ctx context.Context, jobID, ownerID, filename string, raw []byte) (domain.ResolvedInput, error) {
	localPath, err := r.scratch.Write(jobID, path.Base(filename), bytes.NewReader(raw))
	if err != nil {
		return domain.ResolvedInput{}, fmt.Errorf("write upload to scratch: %w", err)
	}
	defer r.removeTemp(jobID, localPath)

	return r.storeCanonical(ctx, localPath, ownerID, filename)
}

func (r *InputResolver) resolveOwnerFile(ctx context.Context, jobID string, in domain.OwnerAndName) (domain.ResolvedInput, error) {
	localPath, err := r.scratch.Path(jobID, path.Base(in.FileName))
	if err != nil {
		return domain.ResolvedInput{}, fmt.Errorf("reserve scratch path: %w", err)
	}
	if err := r.store.GetToFile(ctx, in.FileName, localPath); err != nil {
		r.removeTemp(jobID, localPath)
		return domain.ResolvedInput{}, fmt.Errorf("fetch stored file %q: %w", in.FileName, err)
	}
	defer r.removeTemp(jobID, localPath)

	return r.storeCanonical(ctx, localPath, in.OwnerID, in.FileName)
}

func (r *InputResolver) storeCanonical(ctx context.Context, localPath, ownerID, filename string) (domain.ResolvedInput, error) {
	displayName := identity.Stem(filename)
	id := identity.NewIdentity(displayName, ownerID, path.Ext(filename), r.now())
	key := identity.EncodeIdentity(id)

	url, err := r.store.PutFile(ctx, localPath, key)
	if err != nil {
		return domain.ResolvedInput{}, fmt.Errorf("upload canonical audio: %w", err)
	}

	return domain.ResolvedInput{
		FileID:      id.ContentHash,
		ObjectKey:   key,
		StorageURL:  url,
		DisplayName: displayName,
		OwnerID:     ownerID,
		Extension:   id.Extension,
	}, nil
}

func (r *InputResolver) resolveStoredRef(ctx context.Context, in domain.StoredFileRef) (domain.ResolvedInput, error) {
	key, err := r.lookupKey(ctx, in)
	if err != nil {
		return domain.ResolvedInput{}, err
	}

	resolved := domain.ResolvedInput{
		FileID:     in.FileID,
		ObjectKey:  key,
		StorageURL: r.store.URLFor(key),
		OwnerID:    in.OwnerID,
		Extension:  identity.NormalizeExtension(path.Ext(key)),
	}

	if name, ok := identity.DecodeDisplayName(key); ok {
		resolved.DisplayName = name
	} else {
		r.logger.Warn("display_name_decode_failed",
			"object_key", key,
			"error", domain.WrapError(domain.ErrIdentityDecode, "decode display name", errors.New("no patient marker")),
		)
	}

	if parsed, err := identity.Parse(key); err == nil {
		resolved.FileID = parsed.ContentHash
		if resolved.OwnerID == "" {
			resolved.OwnerID = parsed.OwnerID
		}
	}
	return resolved, nil
}

// lookupKey treats the file id as an opaque key: exact match first, then
// with the requested extension, then a listing scan for the canonical
// audio key whose content hash equals the file id.
func (r *InputResolver) lookupKey(ctx context.Context, in domain.StoredFileRef) (string, error) {
	candidates := []string{in.FileID}
	if in.Extension != "" && !strings.HasSuffix(in.FileID, "."+in.Extension) {
		candidates = append(candidates, in.FileID+"."+in.Extension)
	}
	for _, key := range candidates {
		ok, err := r.store.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check stored file %q: %w", key, err)
		}
		if ok {
			return key, nil
		}
	}

	objects, err := r.store.List(ctx, "")
	if err != nil {
		return "", fmt.Errorf("scan stored files: %w", err)
	}
	for _, obj := range objects {
		id, err := identity.Parse(obj.Key)
		if err == nil && id.ContentHash == in.FileID {
			return obj.Key, nil
		}
	}
	return "", domain.WrapError(domain.ErrArtifactNotFound, "resolve stored file", fmt.Errorf("no object matches file id %q", in.FileID))
}

func (r *InputResolver) removeTemp(jobID, localPath string) {
	if err := r.scratch.Remove(localPath); err != nil {
		r.logger.Warn("temp_cleanup_failed", "job_id", jobID, "path", localPath, "error", err)
	}
}
