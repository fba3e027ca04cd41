package identity

import (
	"fmt"
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

const (
	outputJSONSuffix       = "_output.json"
	outputTranscriptSuffix = "_output.txt"
)

// OutputKey names the structured output artifact of a processed file.
// An empty display name yields an empty middle segment.
func OutputKey(fileID, displayName, ownerID string) string {
	return fmt.Sprintf("%s_%s_%s%s", fileID, displayName, ownerID, outputJSONSuffix)
}

// TranscriptKey names the diarized transcript artifact of a processed file.
func TranscriptKey(fileID, displayName, ownerID string) string {
	return fmt.Sprintf("%s_%s_%s%s", fileID, displayName, ownerID, outputTranscriptSuffix)
}

// OwnerOutputs recognizes the output artifacts of one owner. Output keys
// end in the owner id without a delimiter, so ownership is proven by the
// file id matching the content hash of one of the owner's canonical audio
// keys, not by the suffix alone.
type OwnerOutputs struct {
	ownerID string
	fileIDs map[string]struct{}
}

// NewOwnerOutputs indexes the canonical audio of ownerID found in objects.
func NewOwnerOutputs(ownerID string, objects []domain.StoredObject) OwnerOutputs {
	fileIDs := make(map[string]struct{})
	for _, obj := range objects {
		id, err := Parse(obj.Key)
		if err != nil || id.OwnerID != ownerID {
			continue
		}
		fileIDs[id.ContentHash] = struct{}{}
	}
	return OwnerOutputs{ownerID: ownerID, fileIDs: fileIDs}
}

// ParseOutputKey splits a structured output key of the owner back into
// its file id and display name.
func (o OwnerOutputs) ParseOutputKey(key string) (fileID, displayName string, ok bool) {
	return o.parse(key, outputJSONSuffix)
}

// ParseTranscriptKey is ParseOutputKey for transcript artifacts.
func (o OwnerOutputs) ParseTranscriptKey(key string) (fileID, displayName string, ok bool) {
	return o.parse(key, outputTranscriptSuffix)
}

func (o OwnerOutputs) parse(key, suffix string) (string, string, bool) {
	tail := "_" + o.ownerID + suffix
	if o.ownerID == "" || !strings.HasSuffix(key, tail) {
		return "", "", false
	}
	fileID, displayName, found := strings.Cut(strings.TrimSuffix(key, tail), "_")
	if !found {
		return "", "", false
	}
	if _, owned := o.fileIDs[fileID]; !owned {
		return "", "", false
	}
	return fileID, displayName, true
}
