package ollama

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   resilience.NewExecutor(resilience.InferenceConfig()).WithLogger(logger),
	}
}

// Complete runs one non-streaming generation with the given sampling
// options.
func (c *Client) Complete(ctx context.Context, prompt string, params domain.SamplingParams) (string, error) {
	return c.generate(ctx, prompt, params)
}

// Generator answers questions over retrieved transcript or document chunks.
type Generator struct {
	client *Client
	params domain.SamplingParams
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client, params: domain.SamplingParams{Temperature: 0.1, TopP: 0.9, MaxTokens: 1024}}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error) {
	return g.client.generate(ctx, buildAnswerPrompt(question, chunks), g.params)
}

func (c *Client) generate(ctx context.Context, prompt string, params domain.SamplingParams) (string, error) {
	reqBody := map[string]any{
		"model":   c.model,
		"prompt":  prompt,
		"stream":  false,
		"options": samplingOptions(params),
	}

	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.Execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func samplingOptions(params domain.SamplingParams) map[string]any {
	options := map[string]any{
		"temperature": params.Temperature,
		"top_p":       params.TopP,
	}
	if params.TopK > 0 {
		options["top_k"] = params.TopK
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	if params.PresencePenalty != 0 {
		options["presence_penalty"] = params.PresencePenalty
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}
