package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 450_000_000, time.UTC)

func TestEncodeProducesCanonicalKey(t *testing.T) {
	key := Encode("Jane Doe", "u1", "m4a", fixedNow)

	provisional := "Jane Doepatient_2024-03-09_14-05-07date_u1"
	sum := sha256.Sum256([]byte(provisional))
	want := "Jane Doepatient_2024-03-09_14-05-07date_" + hex.EncodeToString(sum[:]) + "fileID_u1.m4a"
	if key != want {
		t.Fatalf("unexpected key:\n got %s\nwant %s", key, want)
	}
}

func TestEncodeIsDeterministicPerSecond(t *testing.T) {
	a := Encode("n", "u1", ".wav", fixedNow)
	b := Encode("n", "u1", ".wav", fixedNow.Add(300*time.Millisecond))
	if a != b {
		t.Fatalf("expected same key within one second, got %q and %q", a, b)
	}
	c := Encode("n", "u1", ".wav", fixedNow.Add(time.Second))
	if a == c {
		t.Fatalf("expected different keys across seconds")
	}
}

func TestDecodeDisplayNameRoundTrip(t *testing.T) {
	names := []string{"Jane Doe", "", "john", "Émile Zola", "a_b_c"}
	for _, name := range names {
		key := Encode(name, "owner-7", ".mp3", fixedNow)
		got, ok := DecodeDisplayName(key)
		if !ok {
			t.Fatalf("expected decode ok for %q", key)
		}
		if got != name {
			t.Fatalf("round trip mismatch: got %q want %q", got, name)
		}
	}
}

func TestDecodeDisplayNameTruncatesAtFirstMarker(t *testing.T) {
	key := Encode("apatient_b", "u1", ".m4a", fixedNow)
	got, ok := DecodeDisplayName(key)
	if !ok {
		t.Fatalf("expected decode ok")
	}
	if got != "a" {
		t.Fatalf("expected truncated name %q, got %q", "a", got)
	}
}

func TestSeparatorSubstringsInDisplayName(t *testing.T) {
	for _, name := range []string{"a date_b", "xfileID_y", "date_fileID_", "2024-01-01_00-00-00date_"} {
		key := Encode(name, "u1", ".m4a", fixedNow)

		got, ok := DecodeDisplayName(key)
		if !ok || got != name {
			t.Fatalf("DecodeDisplayName(%q) = %q, %v; want %q", key, got, ok, name)
		}

		id, err := Parse(key)
		if err != nil {
			t.Fatalf("Parse(%q): %v", key, err)
		}
		want := NewIdentity(name, "u1", "m4a", fixedNow)
		if id.DisplayName != name || id.OwnerID != "u1" || id.ContentHash != want.ContentHash || id.Extension != ".m4a" {
			t.Fatalf("unexpected identity for %q: %+v", name, id)
		}
	}
}

func TestDecodeDisplayNameUsesFinalPathSegment(t *testing.T) {
	key := Encode("Jane", "u1", ".m4a", fixedNow)

	got, ok := DecodeDisplayName("http://minio:9000/medvoice-storage/" + key)
	if !ok || got != "Jane" {
		t.Fatalf("expected Jane from url, got %q ok=%v", got, ok)
	}

	got, ok = DecodeDisplayName("/tmp/patient_dir/" + key)
	if !ok || got != "Jane" {
		t.Fatalf("expected Jane from path, got %q ok=%v", got, ok)
	}
}

func TestDecodeDisplayNameAbsentMarker(t *testing.T) {
	if _, ok := DecodeDisplayName("recording.m4a"); ok {
		t.Fatalf("expected ok=false for key without marker")
	}
}

func TestParseRecoversIdentity(t *testing.T) {
	want := NewIdentity("Jane Doe", "owner.with.dots", "m4a", fixedNow)
	got, err := Parse(EncodeIdentity(want))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.DisplayName != want.DisplayName || got.OwnerID != want.OwnerID ||
		got.ContentHash != want.ContentHash || got.Extension != want.Extension ||
		!got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("unexpected identity: %+v want %+v", got, want)
	}
}

func TestParseWithoutExtension(t *testing.T) {
	id := NewIdentity("n", "u1", "", fixedNow)
	got, err := Parse(EncodeIdentity(id))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.OwnerID != "u1" || got.Extension != "" {
		t.Fatalf("unexpected owner/ext: %q %q", got.OwnerID, got.Extension)
	}
}

func TestParseRejectsNonCanonicalKey(t *testing.T) {
	_, err := Parse("u1_notes.json")
	if !domain.IsKind(err, domain.ErrIdentityDecode) {
		t.Fatalf("expected identity decode error, got %v", err)
	}
}

func TestIsCanonicalFiltersOwner(t *testing.T) {
	key := Encode("n", "u1", ".m4a", fixedNow)
	if !IsCanonical(key, "u1") || !IsCanonical(key, "") {
		t.Fatalf("expected key to be canonical for u1")
	}
	if IsCanonical(key, "u2") {
		t.Fatalf("expected key not to match u2")
	}
}

func TestSortNewestFirst(t *testing.T) {
	var items []domain.AudioListing
	for _, offset := range []time.Duration{0, 2 * time.Hour, time.Hour} {
		id := NewIdentity("n", "u1", ".m4a", fixedNow.Add(offset))
		items = append(items, domain.AudioListing{
			Identity: id,
			Object:   domain.StoredObject{Key: EncodeIdentity(id)},
		})
	}
	SortNewestFirst(items)
	for i := 1; i < len(items); i++ {
		if items[i-1].Identity.CreatedAt.Before(items[i].Identity.CreatedAt) {
			t.Fatalf("items not sorted newest first: %v", items)
		}
	}
	if !strings.Contains(items[0].Object.Key, "2024-03-09_16-05-07") {
		t.Fatalf("expected newest item first, got %s", items[0].Object.Key)
	}
}

func TestOutputKeys(t *testing.T) {
	if got := OutputKey("abc", "Jane", "u1"); got != "abc_Jane_u1_output.json" {
		t.Fatalf("unexpected output key %q", got)
	}
	if got := OutputKey("abc", "", "u1"); got != "abc__u1_output.json" {
		t.Fatalf("unexpected output key for empty name %q", got)
	}
	if got := TranscriptKey("abc", "Jane", "u1"); got != "abc_Jane_u1_output.txt" {
		t.Fatalf("unexpected transcript key %q", got)
	}
}

func TestStemAndExtension(t *testing.T) {
	if got := Stem("/uploads/Visit Notes.M4A"); got != "Visit Notes" {
		t.Fatalf("unexpected stem %q", got)
	}
	if got := NormalizeExtension("M4A"); got != ".m4a" {
		t.Fatalf("unexpected extension %q", got)
	}
	if got := NormalizeExtension(""); got != "" {
		t.Fatalf("expected empty extension, got %q", got)
	}
}

func TestOwnerOutputsParseOutputKey(t *testing.T) {
	jane := NewIdentity("Jane Doe", "u1", "m4a", fixedNow)
	anon := NewIdentity("", "u1", "m4a", fixedNow.Add(time.Second))
	objects := []domain.StoredObject{{Key: EncodeIdentity(jane)}, {Key: EncodeIdentity(anon)}, {Key: "notes.pdf"}}
	owned := NewOwnerOutputs("u1", objects)

	fileID, name, ok := owned.ParseOutputKey(OutputKey(jane.ContentHash, "Jane Doe", "u1"))
	if !ok || fileID != jane.ContentHash || name != "Jane Doe" {
		t.Fatalf("unexpected parse: %q %q %v", fileID, name, ok)
	}
	fileID, name, ok = owned.ParseOutputKey(OutputKey(anon.ContentHash, "", "u1"))
	if !ok || fileID != anon.ContentHash || name != "" {
		t.Fatalf("unexpected parse for empty name: %q %q %v", fileID, name, ok)
	}
	if _, _, ok := owned.ParseOutputKey(OutputKey("abc123", "Jane", "u1")); ok {
		t.Fatalf("expected unknown file id to fail")
	}
	if _, _, ok := owned.ParseTranscriptKey(TranscriptKey(jane.ContentHash, "Jane Doe", "u1")); !ok {
		t.Fatalf("expected transcript key to parse")
	}
	if _, _, ok := NewOwnerOutputs("u2", objects).ParseOutputKey(OutputKey(jane.ContentHash, "Jane Doe", "u1")); ok {
		t.Fatalf("expected owner mismatch to fail")
	}
}

func TestOwnerOutputsRejectsSuffixSharingOwner(t *testing.T) {
	other := NewIdentity("visit", "clinic_b", "m4a", fixedNow)
	objects := []domain.StoredObject{{Key: EncodeIdentity(other)}}
	key := OutputKey(other.ContentHash, "visit", "clinic_b")

	if _, _, ok := NewOwnerOutputs("b", objects).ParseOutputKey(key); ok {
		t.Fatalf("owner b must not claim %s", key)
	}
	fileID, name, ok := NewOwnerOutputs("clinic_b", objects).ParseOutputKey(key)
	if !ok || fileID != other.ContentHash || name != "visit" {
		t.Fatalf("unexpected parse for clinic_b: %q %q %v", fileID, name, ok)
	}
}
