// Package client talks to the medvoice HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobStatus struct {
	JobID            string          `json:"job_id"`
	Status           string          `json:"status"`
	FileID           string          `json:"file_id,omitempty"`
	DisplayName      string          `json:"display_name,omitempty"`
	StructuredOutput json.RawMessage `json:"structured_output,omitempty"`
	OutputURL        string          `json:"output_url,omitempty"`
	TranscriptURL    string          `json:"transcript_url,omitempty"`
	Error            string          `json:"error,omitempty"`
	ErrorType        string          `json:"error_type,omitempty"`
}

func (s JobStatus) Terminal() bool {
	return s.Status == StatusSuccess || s.Status == StatusFailure
}

type Source struct {
	DocumentKey string  `json:"document_key"`
	ChunkIndex  int     `json:"chunk_index"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

type Answer struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

type AskRequest struct {
	Question    string `json:"question"`
	Source      string `json:"source,omitempty"`
	DocumentKey string `json:"document_key,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// SubmitUpload sends a local audio file as a new job for ownerID.
func (c *Client) SubmitUpload(ctx context.Context, ownerID, filePath string) (JobAccepted, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return JobAccepted{}, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return JobAccepted{}, fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return JobAccepted{}, fmt.Errorf("copy audio file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return JobAccepted{}, fmt.Errorf("close multipart body: %w", err)
	}

	var accepted JobAccepted
	err = c.do(ctx, http.MethodPost, "/v1/jobs/upload/"+url.PathEscape(ownerID), writer.FormDataContentType(), &body, &accepted)
	return accepted, err
}

// SubmitStoredFile submits a job for audio already in the store.
func (c *Client) SubmitStoredFile(ctx context.Context, ownerID, fileID, extension string) (JobAccepted, error) {
	return c.submitJSON(ctx, map[string]string{
		"owner_id":       ownerID,
		"file_id":        fileID,
		"file_extension": extension,
	})
}

// SubmitByName submits a job for a raw file the owner stored earlier.
func (c *Client) SubmitByName(ctx context.Context, ownerID, fileName string) (JobAccepted, error) {
	return c.submitJSON(ctx, map[string]string{
		"owner_id":  ownerID,
		"file_name": fileName,
	})
}

func (c *Client) submitJSON(ctx context.Context, payload map[string]string) (JobAccepted, error) {
	for key, value := range payload {
		if value == "" {
			delete(payload, key)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return JobAccepted{}, fmt.Errorf("encode job request: %w", err)
	}
	var accepted JobAccepted
	err = c.do(ctx, http.MethodPost, "/v1/jobs", "application/json", bytes.NewReader(raw), &accepted)
	return accepted, err
}

func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var status JobStatus
	err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), "", nil, &status)
	return status, err
}

// WaitForJob polls until the job is terminal or ctx is done.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (JobStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			return JobStatus{}, err
		}
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Ask(ctx context.Context, ownerID string, req AskRequest) (Answer, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return Answer{}, fmt.Errorf("encode question: %w", err)
	}
	var answer Answer
	err = c.do(ctx, http.MethodPost, "/v1/owners/"+url.PathEscape(ownerID)+"/ask", "application/json", bytes.NewReader(raw), &answer)
	return answer, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
