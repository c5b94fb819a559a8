package usecase

import (
	"strings"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

var credentialMarkers = []string{
	"API_KEY_INVALID",
	"API key not valid",
	"INVALID_ARGUMENT",
	"UNAUTHENTICATED",
	"invalid api key",
}

// ClassifyProviderError maps a provider failure to an error kind. Errors that
// already carry a domain kind keep it (an open circuit arrives as
// ErrResourceExhausted). Everything else is matched on message markers; the
// mapping is advisory and unrecognised messages are KindUnknownProvider.
func ClassifyProviderError(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindNone
	}
	if kind := domain.KindOf(err); kind != domain.KindUnknownProvider {
		return kind
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) || strings.Contains(lower, strings.ToLower(marker)) {
			return domain.KindCredential
		}
	}

	switch {
	case strings.Contains(msg, "PERMISSION_DENIED") || strings.Contains(msg, "403"):
		return domain.KindPermission
	case strings.Contains(lower, "quota") || strings.Contains(msg, "429"):
		return domain.KindQuotaExceeded
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return domain.KindResourceExhausted
	default:
		return domain.KindUnknownProvider
	}
}

// UserMessage renders the human-readable text shown for a failed analysis.
func UserMessage(kind domain.ErrorKind, detail string) string {
	detail = strings.TrimSpace(detail)
	switch kind {
	case domain.KindValidation:
		if detail == "" {
			detail = "Insufficient text content for analysis."
		}
		return "Validation error: " + detail
	case domain.KindParse:
		if detail == "" {
			detail = "the PDF could not be read."
		}
		return "PDF extraction error: " + detail
	case domain.KindCredential:
		return "Invalid API key: check your API key and try again."
	case domain.KindPermission:
		return "Permission denied: the API key lacks the required permissions."
	case domain.KindQuotaExceeded:
		return "Quota exceeded: free tier daily limit reached. Try again tomorrow or upgrade to a paid tier."
	case domain.KindResourceExhausted:
		return "Resource exhausted: too many requests. Please wait and try again."
	default:
		if detail == "" {
			return "Analysis error: the provider returned an unexpected failure."
		}
		return "Analysis error: " + detail
	}
}
