package usecase

import (
	"strings"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

// StatusView is what polling clients see. Once the job is terminal either
// the success fields or the error fields are populated, never both.
type StatusView struct {
	JobID            string                   `json:"job_id"`
	Status           string                   `json:"status"`
	FileID           string                   `json:"file_id,omitempty"`
	DisplayName      string                   `json:"display_name,omitempty"`
	StructuredOutput *domain.ExtractionResult `json:"structured_output,omitempty"`
	OutputURL        string                   `json:"output_url,omitempty"`
	TranscriptURL    string                   `json:"transcript_url,omitempty"`
	Error            string                   `json:"error,omitempty"`
	ErrorType        string                   `json:"error_type,omitempty"`
}

func NewStatusView(job *domain.Job) StatusView {
	view := StatusView{JobID: job.ID, Status: PollStatus(job.State)}
	switch job.State {
	case domain.JobSuccess:
		if job.Result != nil {
			output := job.Result.StructuredOutput
			view.FileID = job.Result.FileID
			view.DisplayName = job.Result.DisplayName
			view.StructuredOutput = &output
			view.OutputURL = job.Result.OutputURL
			view.TranscriptURL = job.Result.TranscriptURL
		}
	case domain.JobFailure:
		view.Error = job.Error
		view.ErrorType = ErrorType(job.Error)
	}
	return view
}

// PollStatus renders a job state as PENDING, SUCCESS or FAILURE.
func PollStatus(state domain.JobState) string {
	return strings.ToUpper(string(state))
}
