package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/resilience"
)

// ClassifyError drives retries around Gemini calls. Throttling without a
// quota marker and transient transport statuses are retried; credential and
// permission failures are neither retried nor held against the circuit.
func ClassifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if domain.IsKind(err, domain.ErrUnknownProvider) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	statusName := ""
	var pe *ProviderError
	if errors.As(err, &pe) {
		statusName = pe.Status
	}
	msg := err.Error()

	switch {
	case statusName == "UNAUTHENTICATED", statusName == "PERMISSION_DENIED", statusName == "INVALID_ARGUMENT":
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	case strings.Contains(strings.ToLower(msg), "quota"):
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	case statusName == "RESOURCE_EXHAUSTED", strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		statusName == "UNAVAILABLE", strings.Contains(msg, "UNAVAILABLE"),
		statusName == "DEADLINE_EXCEEDED", strings.Contains(msg, "DEADLINE_EXCEEDED"):
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
