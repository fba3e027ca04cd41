package domain

import "time"

// ArtifactIdentity is the identity encoded into a canonical audio object key.
type ArtifactIdentity struct {
	OwnerID     string    `json:"owner_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	ContentHash string    `json:"content_hash"`
	Extension   string    `json:"extension"`
}

// StoredObject describes one object in the bucket.
type StoredObject struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	URL        string    `json:"url"`
}

// ResolvedInput is the canonical shape every job input converges to.
type ResolvedInput struct {
	FileID      string `json:"file_id"`
	ObjectKey   string `json:"object_key"`
	StorageURL  string `json:"storage_url"`
	DisplayName string `json:"display_name,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	Extension   string `json:"extension,omitempty"`
}

// HasDisplayName reports whether a patient display name was recovered.
func (r ResolvedInput) HasDisplayName() bool {
	return r.DisplayName != ""
}

// AudioListing is one canonical audio artifact of an owner.
type AudioListing struct {
	Identity ArtifactIdentity `json:"identity"`
	Object   StoredObject     `json:"object"`
}

// TranscriptRequest attaches a client-supplied transcript to a stored
// recording, referenced by file id or by owner and file name.
type TranscriptRequest struct {
	Transcript    []string `json:"transcript"`
	OwnerID       string   `json:"owner_id,omitempty"`
	FileID        string   `json:"file_id,omitempty"`
	FileExtension string   `json:"file_extension,omitempty"`
	FileName      string   `json:"file_name,omitempty"`
}

// StoredTranscript is the transcript artifact written for a recording.
type StoredTranscript struct {
	FileID        string `json:"file_id"`
	Transcript    string `json:"transcript"`
	TranscriptKey string `json:"transcript_key"`
	TranscriptURL string `json:"transcript_url"`
}
