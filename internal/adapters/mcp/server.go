package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/core/ports"
	"github.com/kirillkom/medvoice/internal/core/usecase"
)

// Server exposes job submission, polling and transcript questions as MCP
// tools. Upload bytes are not accepted here; tools reference stored audio.
type Server struct {
	jobs      ports.JobService
	questions ports.QuestionAnswerer
	mcp       *server.MCPServer
	logger    *slog.Logger
}

func NewServer(jobs ports.JobService, questions ports.QuestionAnswerer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		jobs:      jobs,
		questions: questions,
		logger:    logger,
		mcp: server.NewMCPServer(
			"medvoice",
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool("submit_stored_file_job",
		mcp.WithDescription("Queue transcription and clinical extraction for audio already in the store. Provide file_id or file_name, not both."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner of the recording")),
		mcp.WithString("file_id", mcp.Description("Object key or content hash of a stored recording")),
		mcp.WithString("file_extension", mcp.Description("Extension used when file_id is a bare hash, default m4a")),
		mcp.WithString("file_name", mcp.Description("Name of a raw recording the owner uploaded earlier")),
	), s.submitStoredFile)

	s.mcp.AddTool(mcp.NewTool("get_job_status",
		mcp.WithDescription("Poll a job. Returns PENDING, SUCCESS with the structured record, or FAILURE with the reason."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id returned on submission")),
	), s.jobStatus)

	s.mcp.AddTool(mcp.NewTool("ask_transcripts",
		mcp.WithDescription("Answer a question from the owner's processed consultation records."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner whose records are searched")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language")),
		mcp.WithNumber("limit", mcp.Description("Max record chunks used for the answer")),
	), s.askTranscripts)

	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) ServeHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcp).Start(addr)
}

func (s *Server) submitStoredFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.jobs.Submit(ctx, domain.JobRequest{
		OwnerID:       ownerID,
		FileID:        request.GetString("file_id", ""),
		FileExtension: request.GetString("file_extension", ""),
		FileName:      request.GetString("file_name", ""),
	})
	if err != nil {
		return s.toolError("submit_stored_file_job", err), nil
	}
	return jsonResult(map[string]string{
		"job_id": job.ID,
		"status": usecase.PollStatus(job.State),
	})
}

func (s *Server) jobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.jobs.Status(ctx, jobID)
	if err != nil {
		return s.toolError("get_job_status", err), nil
	}
	return jsonResult(usecase.NewStatusView(job))
}

func (s *Server) askTranscripts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.questions.Ask(ctx, domain.Question{
		OwnerID: ownerID,
		Text:    question,
		Source:  domain.CorpusTranscripts,
		Limit:   request.GetInt("limit", 0),
	})
	if err != nil {
		return s.toolError("ask_transcripts", err), nil
	}
	return jsonResult(answer)
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if !domain.IsKind(err, domain.ErrValidation) && !domain.IsKind(err, domain.ErrJobNotFound) {
		s.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
