// Package langchain serves extraction and question answering from any
// OpenAI-compatible chat endpoint through langchaingo.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Completer struct {
	model    llms.Model
	executor *resilience.Executor
}

func NewOpenAI(cfg Config, logger *slog.Logger) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return NewCompleter(model, logger), nil
}

func NewCompleter(model llms.Model, logger *slog.Logger) *Completer {
	return &Completer{
		model:    model,
		executor: resilience.NewExecutor(resilience.InferenceConfig()).WithLogger(logger),
	}
}

func (c *Completer) Complete(ctx context.Context, prompt string, params domain.SamplingParams) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	var content string
	err := c.executor.Execute(ctx, "openai.generate", func(callCtx context.Context) error {
		response, err := c.model.GenerateContent(callCtx, messages, callOptions(params)...)
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			return errors.New("no response choices")
		}
		content = response.Choices[0].Content
		return nil
	}, classifyError)
	if err != nil {
		if classifyError(err).Retryable || resilience.IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, "openai generate", err)
		}
		return "", fmt.Errorf("openai generate: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func callOptions(params domain.SamplingParams) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
		llms.WithTopP(params.TopP),
	}
	if params.TopK > 0 {
		opts = append(opts, llms.WithTopK(params.TopK))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}
	if params.PresencePenalty != 0 {
		opts = append(opts, llms.WithPresencePenalty(params.PresencePenalty))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	return opts
}

var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// classifyError reads the HTTP status out of the client's error text; the
// openai client does not expose a typed status error.
func classifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return resilience.ClassifyHTTPStatus(status)
	}
	return resilience.ClassifyTransport(err)
}
