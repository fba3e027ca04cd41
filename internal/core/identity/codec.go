// Package identity encodes artifact identity into object keys and back.
//
// A canonical audio key looks like
//
//	{displayName}patient_{2006-01-02_15-04-05}date_{sha256}fileID_{ownerID}{ext}
//
// The format uses no escaping. A display name that itself contains
// "patient_" decodes to the text before its first occurrence.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

const (
	TimestampLayout = "2006-01-02_15-04-05"

	patientMarker = "patient_"
	dateMarker    = "date_"
	fileIDMarker  = "fileID_"
)

var keyPattern = regexp.MustCompile(`^(.*?)patient_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})date_([0-9a-f]{64})fileID_(.+?)(\.[^./]+)?$`)

// Encode builds the canonical key. ext may be given with or without a dot.
// now is truncated to the second and formatted in its own location.
func Encode(displayName, ownerID, ext string, now time.Time) string {
	return EncodeIdentity(NewIdentity(displayName, ownerID, ext, now))
}

// NewIdentity computes the content hash over the provisional key, which
// carries name, timestamp and owner but not the extension.
func NewIdentity(displayName, ownerID, ext string, now time.Time) domain.ArtifactIdentity {
	createdAt := now.Truncate(time.Second)
	provisional := displayName + patientMarker + createdAt.Format(TimestampLayout) + dateMarker + ownerID
	sum := sha256.Sum256([]byte(provisional))
	return domain.ArtifactIdentity{
		OwnerID:     ownerID,
		DisplayName: displayName,
		CreatedAt:   createdAt,
		ContentHash: hex.EncodeToString(sum[:]),
		Extension:   NormalizeExtension(ext),
	}
}

func EncodeIdentity(id domain.ArtifactIdentity) string {
	var b strings.Builder
	b.WriteString(id.DisplayName)
	b.WriteString(patientMarker)
	b.WriteString(id.CreatedAt.Format(TimestampLayout))
	b.WriteString(dateMarker)
	b.WriteString(id.ContentHash)
	b.WriteString(fileIDMarker)
	b.WriteString(id.OwnerID)
	b.WriteString(id.Extension)
	return b.String()
}

// DecodeDisplayName returns the text before the first "patient_" in the
// final path segment of keyOrPath. URLs and nested keys are accepted.
func DecodeDisplayName(keyOrPath string) (string, bool) {
	base := path.Base(strings.TrimRight(keyOrPath, "/"))
	idx := strings.Index(base, patientMarker)
	if idx < 0 {
		return "", false
	}
	return base[:idx], true
}

// Parse decodes every field of a canonical key. The owner id is taken as
// everything between "fileID_" and the extension.
func Parse(key string) (domain.ArtifactIdentity, error) {
	base := path.Base(key)
	m := keyPattern.FindStringSubmatch(base)
	if m == nil {
		return domain.ArtifactIdentity{}, domain.WrapError(domain.ErrIdentityDecode, "parse object key", fmt.Errorf("not a canonical artifact key: %s", base))
	}
	createdAt, err := time.Parse(TimestampLayout, m[2])
	if err != nil {
		return domain.ArtifactIdentity{}, domain.WrapError(domain.ErrIdentityDecode, "parse object key timestamp", err)
	}
	return domain.ArtifactIdentity{
		DisplayName: m[1],
		CreatedAt:   createdAt,
		ContentHash: m[3],
		OwnerID:     m[4],
		Extension:   m[5],
	}, nil
}

// IsCanonical reports whether key is a canonical audio key of ownerID.
// An empty ownerID matches any owner.
func IsCanonical(key, ownerID string) bool {
	id, err := Parse(key)
	if err != nil {
		return false
	}
	return ownerID == "" || id.OwnerID == ownerID
}

// SortNewestFirst orders listings by the timestamp embedded in the key,
// breaking ties by key for a stable result.
func SortNewestFirst(items []domain.AudioListing) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Identity.CreatedAt, items[j].Identity.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return items[i].Object.Key > items[j].Object.Key
	})
}

// NormalizeExtension returns ext lower-cased with a leading dot, or "".
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Stem returns a filename without directory and extension.
func Stem(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
