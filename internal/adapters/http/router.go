package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/medvoice/internal/config"
	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/ports"
	"github.com/kirillkom/medvoice/internal/core/usecase"
	"github.com/kirillkom/medvoice/internal/observability/metrics"
)

const (
	serviceName       = "api"
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	multipartMemLimit = 32 << 20
)

type Router struct {
	cfg       config.Config
	jobs      ports.JobService
	library   ports.AudioLibrary
	questions ports.QuestionAnswerer
	metrics   *metrics.HTTPServerMetrics
	validator *openAPIValidator
}

func NewRouter(
	cfg config.Config,
	jobs ports.JobService,
	library ports.AudioLibrary,
	questions ports.QuestionAnswerer,
) *Router {
	rt := &Router{
		cfg:       cfg,
		jobs:      jobs,
		library:   library,
		questions: questions,
		metrics:   metrics.NewHTTPServerMetrics(serviceName),
	}
	if cfg.APIOpenAPIValidation {
		validator, err := newOpenAPIValidator()
		if err != nil {
			slog.Error("openapi_validation_disabled", "error", err)
		} else {
			rt.validator = validator
		}
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	mux.HandleFunc("POST /v1/jobs/upload/{owner_id}", rt.submitUpload)
	mux.HandleFunc("POST /v1/jobs", rt.submitJob)
	mux.HandleFunc("GET /v1/jobs/{job_id}", rt.jobStatus)
	mux.HandleFunc("POST /v1/transcripts", rt.storeTranscript)
	mux.HandleFunc("POST /v1/owners/{owner_id}/audio", rt.storeRawAudio)
	mux.HandleFunc("GET /v1/owners/{owner_id}/audios", rt.listAudio)
	mux.HandleFunc("GET /v1/owners/{owner_id}/records.xlsx", rt.exportRecords)
	mux.HandleFunc("POST /v1/owners/{owner_id}/ask", rt.ask)

	var handler http.Handler = mux
	if rt.validator != nil {
		handler = rt.validator.middleware(handler)
	}
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(OpenAPIDocument())
}

type jobAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (rt *Router) submitUpload(w http.ResponseWriter, r *http.Request) {
	filename, contentType, raw, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.submit(w, r, domain.JobRequest{
		OwnerID:          r.PathValue("owner_id"),
		RawBytes:         raw,
		OriginalFilename: filename,
		ContentType:      contentType,
	})
}

func (rt *Router) submitJob(w http.ResponseWriter, r *http.Request) {
	var req domain.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Invalid("decode job request", "invalid json body: %v", err))
		return
	}
	req.RawBytes = nil
	req.OriginalFilename = ""
	rt.submit(w, r, req)
}

func (rt *Router) submit(w http.ResponseWriter, r *http.Request, req domain.JobRequest) {
	job, err := rt.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordJobSubmitted(serviceName, string(job.Kind))

	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, jobAcceptedResponse{
		JobID:  job.ID,
		Status: usecase.PollStatus(job.State),
	})
}

func (rt *Router) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := rt.jobs.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordJobPoll(serviceName, string(job.State))
	writeJSON(w, http.StatusOK, usecase.NewStatusView(job))
}

func (rt *Router) storeRawAudio(w http.ResponseWriter, r *http.Request) {
	filename, _, raw, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := rt.library.StoreRaw(r.Context(), r.PathValue("owner_id"), filename, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (rt *Router) storeTranscript(w http.ResponseWriter, r *http.Request) {
	var req domain.TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Invalid("decode transcript request", "invalid json body: %v", err))
		return
	}
	stored, err := rt.library.StoreTranscript(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (rt *Router) listAudio(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner_id")
	audios, err := rt.library.ListAudio(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"audios":   audios,
	})
}

func (rt *Router) exportRecords(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner_id")
	data, err := rt.library.ExportRecords(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ownerID+"_records.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type askRequest struct {
	Question    string `json:"question"`
	Source      string `json:"source"`
	DocumentKey string `json:"document_key"`
	Limit       int    `json:"limit"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.Invalid("decode question", "invalid json body: %v", err))
		return
	}

	source := domain.CorpusSource(req.Source)
	if source == "" {
		source = domain.CorpusTranscripts
	}
	start := time.Now()
	answer, err := rt.questions.Ask(r.Context(), domain.Question{
		OwnerID:     r.PathValue("owner_id"),
		Text:        req.Question,
		Source:      source,
		DocumentKey: req.DocumentKey,
		Limit:       req.Limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordQuestion(serviceName, string(source), len(answer.Sources), time.Since(start))
	writeJSON(w, http.StatusOK, answer)
}

// readUpload reads the multipart "file" field within the configured size cap.
func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (string, string, []byte, error) {
	if rt.cfg.APIMaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.APIMaxUploadMB)<<20)
	}
	if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", nil, domain.Invalid("read upload", "upload exceeds %d MB", rt.cfg.APIMaxUploadMB)
		}
		return "", "", nil, domain.Invalid("read upload", "multipart field 'file' is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, domain.Invalid("read upload", "multipart field 'file' is required")
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return "", "", nil, domain.Invalid("read upload", "read file: %v", err)
	}
	return header.Filename, header.Header.Get("Content-Type"), raw, nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("http_response_encode_failed", "error", err)
	}
}
