package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultAudioExtension is assumed for stored file references without one.
const DefaultAudioExtension = "m4a"

type JobKind string

const (
	JobKindUpload     JobKind = "upload"
	JobKindStoredFile JobKind = "stored_file"
	JobKindOwnerName  JobKind = "owner_name"
)

// JobInput is one of UploadedBytes, StoredFileRef or OwnerAndName.
type JobInput interface {
	Kind() JobKind
	isJobInput()
}

// UploadedBytes is a fresh upload carried with the job.
type UploadedBytes struct {
	OwnerID          string
	RawBytes         []byte
	OriginalFilename string
	ContentType      string
}

// StoredFileRef points at an object already in the store. FileID is an
// opaque lookup key: a full object key or just the content hash.
type StoredFileRef struct {
	FileID    string
	Extension string
	OwnerID   string
}

// OwnerAndName names a raw file the owner stored earlier.
type OwnerAndName struct {
	OwnerID  string
	FileName string
}

func (UploadedBytes) Kind() JobKind { return JobKindUpload }
func (StoredFileRef) Kind() JobKind { return JobKindStoredFile }
func (OwnerAndName) Kind() JobKind  { return JobKindOwnerName }

func (UploadedBytes) isJobInput() {}
func (StoredFileRef) isJobInput() {}
func (OwnerAndName) isJobInput()  {}

func NewUploadedBytes(ownerID string, raw []byte, originalFilename, contentType string) (UploadedBytes, error) {
	ownerID = strings.TrimSpace(ownerID)
	name := filepath.Base(strings.TrimSpace(originalFilename))
	switch {
	case ownerID == "":
		return UploadedBytes{}, Invalid("uploaded bytes", "owner id is required")
	case len(raw) == 0:
		return UploadedBytes{}, Invalid("uploaded bytes", "file content is empty")
	case originalFilename == "" || name == "." || name == "/":
		return UploadedBytes{}, Invalid("uploaded bytes", "original filename is required")
	}
	return UploadedBytes{
		OwnerID:          ownerID,
		RawBytes:         raw,
		OriginalFilename: name,
		ContentType:      contentType,
	}, nil
}

func NewStoredFileRef(fileID, extension, ownerID string) (StoredFileRef, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return StoredFileRef{}, Invalid("stored file ref", "file id is required")
	}
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if extension == "" {
		extension = DefaultAudioExtension
	}
	return StoredFileRef{FileID: fileID, Extension: extension, OwnerID: strings.TrimSpace(ownerID)}, nil
}

func NewOwnerAndName(ownerID, fileName string) (OwnerAndName, error) {
	ownerID = strings.TrimSpace(ownerID)
	fileName = strings.TrimSpace(fileName)
	if ownerID == "" {
		return OwnerAndName{}, Invalid("owner and name", "owner id is required")
	}
	if fileName == "" {
		return OwnerAndName{}, Invalid("owner and name", "file name is required")
	}
	return OwnerAndName{OwnerID: ownerID, FileName: fileName}, nil
}

// JobRequest is the loose submission shape coming from transports, where
// the variant is implied by which fields are populated.
type JobRequest struct {
	OwnerID          string `json:"owner_id,omitempty"`
	RawBytes         []byte `json:"-"`
	OriginalFilename string `json:"original_filename,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
	FileID           string `json:"file_id,omitempty"`
	FileExtension    string `json:"file_extension,omitempty"`
	FileName         string `json:"file_name,omitempty"`
}

// ParseJobRequest accepts exactly one populated variant. OwnerID alone does
// not select a variant since it accompanies two of them.
func ParseJobRequest(req JobRequest) (JobInput, error) {
	upload := len(req.RawBytes) > 0 || strings.TrimSpace(req.OriginalFilename) != ""
	stored := strings.TrimSpace(req.FileID) != ""
	named := strings.TrimSpace(req.FileName) != ""

	populated := 0
	for _, set := range []bool{upload, stored, named} {
		if set {
			populated++
		}
	}
	switch {
	case populated == 0:
		return nil, Invalid("parse job request", "one of upload, file_id or file_name must be provided")
	case populated > 1:
		return nil, Invalid("parse job request", "upload, file_id and file_name are mutually exclusive")
	}

	switch {
	case upload:
		return NewUploadedBytes(req.OwnerID, req.RawBytes, req.OriginalFilename, req.ContentType)
	case stored:
		return NewStoredFileRef(req.FileID, req.FileExtension, req.OwnerID)
	default:
		return NewOwnerAndName(req.OwnerID, req.FileName)
	}
}

type JobState string

const (
	JobPending JobState = "pending"
	JobSuccess JobState = "success"
	JobFailure JobState = "failure"
)

func (s JobState) Terminal() bool {
	return s == JobSuccess || s == JobFailure
}

// JobResult is the success payload a polling client receives.
type JobResult struct {
	FileID           string           `json:"file_id"`
	DisplayName      string           `json:"display_name,omitempty"`
	OutputURL        string           `json:"output_url,omitempty"`
	TranscriptURL    string           `json:"transcript_url,omitempty"`
	StructuredOutput ExtractionResult `json:"structured_output"`
}

type Job struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	OwnerID    string     `json:"owner_id,omitempty"`
	State      JobState   `json:"state"`
	Result     *JobResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobMessage is the serializable job description handed to workers.
// Upload bytes travel out of band under StagedObject.
type JobMessage struct {
	JobID            string    `json:"job_id"`
	Kind             JobKind   `json:"kind"`
	OwnerID          string    `json:"owner_id,omitempty"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	ContentType      string    `json:"content_type,omitempty"`
	StagedObject     string    `json:"staged_object,omitempty"`
	FileID           string    `json:"file_id,omitempty"`
	FileExtension    string    `json:"file_extension,omitempty"`
	FileName         string    `json:"file_name,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// NewJobMessage describes input for a worker. raw bytes are not included.
func NewJobMessage(jobID string, input JobInput, stagedObject string, submittedAt time.Time) JobMessage {
	msg := JobMessage{JobID: jobID, Kind: input.Kind(), SubmittedAt: submittedAt}
	switch in := input.(type) {
	case UploadedBytes:
		msg.OwnerID = in.OwnerID
		msg.OriginalFilename = in.OriginalFilename
		msg.ContentType = in.ContentType
		msg.StagedObject = stagedObject
	case StoredFileRef:
		msg.OwnerID = in.OwnerID
		msg.FileID = in.FileID
		msg.FileExtension = in.Extension
	case OwnerAndName:
		msg.OwnerID = in.OwnerID
		msg.FileName = in.FileName
	}
	return msg
}

// Input rebuilds the job input on the worker side. raw carries the staged
// upload bytes and is ignored for the other kinds.
func (m JobMessage) Input(raw []byte) (JobInput, error) {
	switch m.Kind {
	case JobKindUpload:
		return NewUploadedBytes(m.OwnerID, raw, m.OriginalFilename, m.ContentType)
	case JobKindStoredFile:
		return NewStoredFileRef(m.FileID, m.FileExtension, m.OwnerID)
	case JobKindOwnerName:
		return NewOwnerAndName(m.OwnerID, m.FileName)
	default:
		return nil, Invalid("job message", "unknown job kind %q", m.Kind)
	}
}
