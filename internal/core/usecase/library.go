package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
	"github.com/kirillkom/medvoice/internal/core/ports"
)

type AudioLibraryUseCase struct {
	store    ports.ObjectStore
	resolver *InputResolver
	exporter ports.RecordExporter
	logger   *slog.Logger
	newID    func() string
}

func NewAudioLibraryUseCase(
	store ports.ObjectStore,
	resolver *InputResolver,
	exporter ports.RecordExporter,
	logger *slog.Logger,
) *AudioLibraryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioLibraryUseCase{
		store:    store,
		resolver: resolver,
		exporter: exporter,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// StoreRaw keeps an upload under its original filename without processing
// it. Such files are later referenced by owner and name.
func (uc *AudioLibraryUseCase) StoreRaw(ctx context.Context, ownerID, filename string, data []byte) (domain.StoredObject, error) {
	ownerID = strings.TrimSpace(ownerID)
	key := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	switch {
	case ownerID == "":
		return domain.StoredObject{}, domain.Invalid("store raw audio", "owner id is required")
	case key == "" || key == "." || key == "/":
		return domain.StoredObject{}, domain.Invalid("store raw audio", "filename is required")
	case len(data) == 0:
		return domain.StoredObject{}, domain.Invalid("store raw audio", "file content is empty")
	}

	url, err := uc.store.PutBytes(ctx, data, key)
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("store raw audio: %w", err)
	}
	uc.logger.Info("raw_audio_stored", "owner_id", ownerID, "object_key", key, "size", len(data))
	return domain.StoredObject{Key: key, Size: int64(len(data)), URL: url}, nil
}

// StoreTranscript resolves the referenced recording the way a job would and
// writes the supplied lines as its transcript artifact. Uploads are not
// accepted here; the recording must already be stored.
func (uc *AudioLibraryUseCase) StoreTranscript(ctx context.Context, req domain.TranscriptRequest) (domain.StoredTranscript, error) {
	lines := make([]string, 0, len(req.Transcript))
	for _, line := range req.Transcript {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return domain.StoredTranscript{}, domain.Invalid("store transcript", "transcript must be provided")
	}

	input, err := domain.ParseJobRequest(domain.JobRequest{
		OwnerID:       req.OwnerID,
		FileID:        req.FileID,
		FileExtension: req.FileExtension,
		FileName:      req.FileName,
	})
	if err != nil {
		return domain.StoredTranscript{}, err
	}

	workID := uc.newID()
	defer func() {
		if err := uc.resolver.scratch.RemoveJob(workID); err != nil {
			uc.logger.Warn("temp_cleanup_failed", "work_id", workID, "error", err)
		}
	}()
	resolved, err := uc.resolver.Resolve(ctx, workID, input)
	if err != nil {
		return domain.StoredTranscript{}, fmt.Errorf("resolve transcript audio: %w", err)
	}

	text := strings.Join(lines, "\n")
	key := identity.TranscriptKey(resolved.FileID, resolved.DisplayName, resolved.OwnerID)
	url, err := uc.store.PutBytes(ctx, []byte(text), key)
	if err != nil {
		return domain.StoredTranscript{}, fmt.Errorf("store transcript: %w", err)
	}
	uc.logger.Info("transcript_stored", "file_id", resolved.FileID, "object_key", key, "lines", len(lines))
	return domain.StoredTranscript{
		FileID:        resolved.FileID,
		Transcript:    text,
		TranscriptKey: key,
		TranscriptURL: url,
	}, nil
}

// ListAudio returns the owner's canonical recordings, newest first.
func (uc *AudioLibraryUseCase) ListAudio(ctx context.Context, ownerID string) ([]domain.AudioListing, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Invalid("list audio", "owner id is required")
	}
	objects, err := uc.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list stored objects: %w", err)
	}

	out := make([]domain.AudioListing, 0, len(objects))
	for _, obj := range objects {
		id, err := identity.Parse(obj.Key)
		if err != nil || id.OwnerID != ownerID {
			continue
		}
		out = append(out, domain.AudioListing{Identity: id, Object: obj})
	}
	identity.SortNewestFirst(out)
	return out, nil
}

// ExportRecords renders every structured output of the owner as a
// spreadsheet. Unreadable outputs are skipped and logged.
func (uc *AudioLibraryUseCase) ExportRecords(ctx context.Context, ownerID string) ([]byte, error) {
	rows, err := uc.loadRecords(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	data, err := uc.exporter.Export(rows)
	if err != nil {
		return nil, fmt.Errorf("render records export: %w", err)
	}
	return data, nil
}

func (uc *AudioLibraryUseCase) loadRecords(ctx context.Context, ownerID string) ([]domain.RecordRow, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Invalid("export records", "owner id is required")
	}
	objects, err := uc.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list stored objects: %w", err)
	}

	owned := identity.NewOwnerOutputs(ownerID, objects)
	rows := make([]domain.RecordRow, 0)
	for _, obj := range objects {
		fileID, displayName, ok := owned.ParseOutputKey(obj.Key)
		if !ok {
			continue
		}
		raw, err := uc.store.GetBytes(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("read output %q: %w", obj.Key, err)
		}
		var output domain.ExtractionResult
		if err := json.Unmarshal(raw, &output); err != nil {
			uc.logger.Warn("output_decode_failed", "object_key", obj.Key, "error", err)
			continue
		}
		rows = append(rows, domain.RecordRow{
			OutputKey:   obj.Key,
			FileID:      fileID,
			DisplayName: displayName,
			OwnerID:     ownerID,
			ModifiedAt:  obj.ModifiedAt,
			Output:      output,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ModifiedAt.Equal(rows[j].ModifiedAt) {
			return rows[i].ModifiedAt.After(rows[j].ModifiedAt)
		}
		return rows[i].OutputKey < rows[j].OutputKey
	})
	return rows, nil
}
