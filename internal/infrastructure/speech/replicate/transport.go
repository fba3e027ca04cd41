package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
)

func (t *Transcriber) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}
	return t.send(req, out, operation)
}

// upload streams a local file to the files API as multipart form data.
func (t *Transcriber) upload(ctx context.Context, path, contentType string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open local audio: %w", err)
	}
	defer file.Close()

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		writer.CloseWithError(writeFilePart(form, file, filepath.Base(path), contentType))
	}()
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/files", body)
	if err != nil {
		return fmt.Errorf("create upload file request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return t.send(req, out, "upload file")
}

func writeFilePart(form *multipart.Writer, file io.Reader, name, contentType string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="content"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}

func (t *Transcriber) send(req *http.Request, out any, operation string) error {
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIToken)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
