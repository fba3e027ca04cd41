package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/medvoice/internal/client"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	SetOutput(&out)
	SetArgs(args)
	err := Execute()
	return out.String(), err
}

func TestSubmitRefPrintsJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(client.JobAccepted{JobID: "job-9", Status: client.StatusPending})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "submit", "ref", "--owner", "u1", "0f1e2d")
	if err != nil {
		t.Fatalf("submit ref error = %v", err)
	}
	if strings.TrimSpace(out) != "job-9\tPENDING" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.JobStatus{
			JobID:     "job-1",
			Status:    client.StatusFailure,
			Error:     "transcribe audio: inference error: 502",
			ErrorType: "processing_error",
		})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "status", "job-1")
	if err == nil {
		t.Fatalf("expected error for failed job")
	}
	if !strings.Contains(out, `"error_type": "processing_error"`) {
		t.Fatalf("expected status json in output, got %q", out)
	}
}

func TestAskPrintsSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.AskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Question != "which allergies" {
			t.Errorf("unexpected question %q", req.Question)
		}
		_ = json.NewEncoder(w).Encode(client.Answer{
			Response: "Penicillin",
			Sources:  []client.Source{{DocumentKey: "a_output.json", ChunkIndex: 0, Score: 0.5}},
		})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--server", srv.URL, "ask", "--owner", "u1", "which", "allergies")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if !strings.Contains(out, "Penicillin") || !strings.Contains(out, "a_output.json #0") {
		t.Fatalf("unexpected output %q", out)
	}
}
