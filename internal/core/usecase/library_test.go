package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/identity"
)

type exporterFake struct {
	rows []domain.RecordRow
}

func (f *exporterFake) Export(rows []domain.RecordRow) ([]byte, error) {
	f.rows = rows
	return []byte("xlsx"), nil
}

func TestStoreRawKeepsOriginalName(t *testing.T) {
	store := newStoreFake()
	uc := NewAudioLibraryUseCase(store, nil, &exporterFake{}, nil)

	obj, err := uc.StoreRaw(context.Background(), "u1", "C:\\recordings\\checkup.mp3", []byte("raw"))
	if err != nil {
		t.Fatalf("store raw: %v", err)
	}
	if obj.Key != "checkup.mp3" || obj.URL != fakeStoreBase+"checkup.mp3" || obj.Size != 3 {
		t.Fatalf("unexpected stored object %+v", obj)
	}
}

func TestStoreRawValidates(t *testing.T) {
	uc := NewAudioLibraryUseCase(newStoreFake(), nil, &exporterFake{}, nil)
	if _, err := uc.StoreRaw(context.Background(), "", "a.mp3", []byte("x")); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for owner, got %v", err)
	}
	if _, err := uc.StoreRaw(context.Background(), "u1", "a.mp3", nil); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty body, got %v", err)
	}
}

func TestListAudioFiltersOwnerAndSorts(t *testing.T) {
	store := newStoreFake()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	older := identity.Encode("A", "u1", ".m4a", base)
	newer := identity.Encode("B", "u1", ".m4a", base.Add(time.Hour))
	store.seed(older, []byte("a"), base)
	store.seed(newer, []byte("b"), base)
	store.seed(identity.Encode("C", "u2", ".m4a", base), []byte("c"), base)
	store.seed("checkup.mp3", []byte("raw"), base)

	uc := NewAudioLibraryUseCase(store, nil, &exporterFake{}, nil)
	items, err := uc.ListAudio(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Object.Key != newer || items[1].Object.Key != older {
		t.Fatalf("unexpected listing %+v", items)
	}
	if items[0].Identity.DisplayName != "B" {
		t.Fatalf("expected decoded identity, got %+v", items[0].Identity)
	}
}

func TestExportRecordsReadsOwnerOutputs(t *testing.T) {
	store := newStoreFake()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	h1 := store.seedRecording("Jane", "u1", base)
	h2 := store.seedRecording("", "u1", base.Add(time.Second))
	h3 := store.seedRecording("Bob", "u2", base)
	h4 := store.seedRecording("Bad", "u1", base.Add(2*time.Second))
	store.seed(identity.OutputKey(h1, "Jane", "u1"), []byte(validRecordJSON), base)
	store.seed(identity.OutputKey(h2, "", "u1"), []byte(`{"error":"Failed to parse JSON","raw_output":"x"}`), base.Add(time.Minute))
	store.seed(identity.OutputKey(h3, "Bob", "u2"), []byte(validRecordJSON), base)
	store.seed(identity.OutputKey(h4, "Bad", "u1"), []byte("not json"), base)

	exporter := &exporterFake{}
	uc := NewAudioLibraryUseCase(store, nil, exporter, nil)
	data, err := uc.ExportRecords(context.Background(), "u1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(data) != "xlsx" {
		t.Fatalf("unexpected export bytes")
	}
	if len(exporter.rows) != 2 {
		t.Fatalf("expected two readable rows, got %+v", exporter.rows)
	}
	if exporter.rows[0].FileID != h2 || !exporter.rows[0].Output.Failed() {
		t.Fatalf("expected newest row first with sentinel, got %+v", exporter.rows[0])
	}
	if exporter.rows[1].DisplayName != "Jane" || exporter.rows[1].Output.Record == nil {
		t.Fatalf("unexpected record row %+v", exporter.rows[1])
	}
}

func TestExportRecordsIgnoresOwnerWithSharedSuffix(t *testing.T) {
	store := newStoreFake()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	other := store.seedRecording("visit", "clinic_b", base)
	store.seed(identity.OutputKey(other, "visit", "clinic_b"), []byte(validRecordJSON), base)

	exporter := &exporterFake{}
	uc := NewAudioLibraryUseCase(store, nil, exporter, nil)
	if _, err := uc.ExportRecords(context.Background(), "b"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exporter.rows) != 0 {
		t.Fatalf("owner b must not see clinic_b records, got %+v", exporter.rows)
	}

	if _, err := uc.ExportRecords(context.Background(), "clinic_b"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exporter.rows) != 1 || exporter.rows[0].DisplayName != "visit" {
		t.Fatalf("expected clinic_b record, got %+v", exporter.rows)
	}
}

func newTranscriptLibrary(t *testing.T, store *storeFake) (*AudioLibraryUseCase, *scratchFake) {
	t.Helper()
	resolver, scratch := newTestResolver(t, store)
	uc := NewAudioLibraryUseCase(store, resolver, &exporterFake{}, nil)
	uc.newID = func() string { return "work-1" }
	return uc, scratch
}

func TestStoreTranscriptForStoredFile(t *testing.T) {
	store := newStoreFake()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	fileID := store.seedRecording("Jane", "u1", at)
	uc, scratch := newTranscriptLibrary(t, store)

	got, err := uc.StoreTranscript(context.Background(), domain.TranscriptRequest{
		Transcript: []string{"SPEAKER_00: Hello", "  ", "SPEAKER_01: Hi"},
		FileID:     fileID,
	})
	if err != nil {
		t.Fatalf("store transcript: %v", err)
	}
	wantKey := identity.TranscriptKey(fileID, "Jane", "u1")
	if got.FileID != fileID || got.TranscriptKey != wantKey || got.TranscriptURL != fakeStoreBase+wantKey {
		t.Fatalf("unexpected stored transcript %+v", got)
	}
	data, err := store.GetBytes(context.Background(), wantKey)
	if err != nil || string(data) != "SPEAKER_00: Hello\nSPEAKER_01: Hi" {
		t.Fatalf("unexpected transcript object %q, %v", data, err)
	}
	if files := scratch.files(t); len(files) != 0 {
		t.Fatalf("expected scratch emptied, got %v", files)
	}
}

func TestStoreTranscriptForOwnerAndName(t *testing.T) {
	store := newStoreFake()
	store.seed("checkup.mp3", []byte("raw"), time.Now())
	uc, _ := newTranscriptLibrary(t, store)

	got, err := uc.StoreTranscript(context.Background(), domain.TranscriptRequest{
		Transcript: []string{"line"},
		OwnerID:    "u1",
		FileName:   "checkup.mp3",
	})
	if err != nil {
		t.Fatalf("store transcript: %v", err)
	}
	if !strings.HasSuffix(got.TranscriptKey, "_checkup_u1_output.txt") || got.FileID == "" {
		t.Fatalf("unexpected transcript key %q", got.TranscriptKey)
	}
}

func TestStoreTranscriptValidation(t *testing.T) {
	cases := map[string]domain.TranscriptRequest{
		"empty transcript": {Transcript: []string{" "}, FileID: "abc"},
		"no reference":     {Transcript: []string{"line"}},
		"both references":  {Transcript: []string{"line"}, FileID: "abc", OwnerID: "u1", FileName: "a.mp3"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			store := newStoreFake()
			uc, _ := newTranscriptLibrary(t, store)
			if _, err := uc.StoreTranscript(context.Background(), req); !domain.IsKind(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if store.calls() != 0 {
				t.Fatalf("expected no store calls")
			}
		})
	}
}

func TestStoreTranscriptUnknownFile(t *testing.T) {
	uc, _ := newTranscriptLibrary(t, newStoreFake())
	_, err := uc.StoreTranscript(context.Background(), domain.TranscriptRequest{Transcript: []string{"x"}, FileID: "missing"})
	if !domain.IsKind(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected artifact not found, got %v", err)
	}
}
