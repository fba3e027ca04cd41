package replicate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "replicate status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("replicate %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("replicate %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func classifyReplicateError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		class := resilience.ClassifyHTTPStatus(statusErr.StatusCode)
		class.RetryAfter = statusErr.RetryAfter
		return class
	}
	return resilience.ClassifyTransport(err)
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyReplicateError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
