package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

func TestClassifyProviderError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, domain.KindNone},
		{"invalid key", errors.New("googleapi: Error 400: API key not valid. Please pass a valid API key."), domain.KindCredential},
		{"api key invalid reason", errors.New("INVALID_ARGUMENT: API_KEY_INVALID"), domain.KindCredential},
		{"unauthenticated", errors.New("rpc error: code = UNAUTHENTICATED"), domain.KindCredential},
		{"lowercase marker", errors.New("Invalid API Key supplied"), domain.KindCredential},
		{"permission", errors.New("PERMISSION_DENIED: caller lacks access"), domain.KindPermission},
		{"403", errors.New("googleapi: Error 403: forbidden"), domain.KindPermission},
		{"quota", errors.New("RESOURCE_EXHAUSTED: Quota exceeded for metric"), domain.KindQuotaExceeded},
		{"429", errors.New("googleapi: Error 429: too many"), domain.KindQuotaExceeded},
		{"resource", errors.New("RESOURCE_EXHAUSTED: try later"), domain.KindResourceExhausted},
		{"open circuit", domain.WrapError(domain.ErrResourceExhausted, "generate", errors.New("circuit breaker is open")), domain.KindResourceExhausted},
		{"unknown", errors.New("connection reset by peer"), domain.KindUnknownProvider},
		{"typed validation", fmt.Errorf("outer: %w", domain.ErrValidation), domain.KindValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyProviderError(tc.err); got != tc.want {
				t.Fatalf("ClassifyProviderError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestUserMessageHasTextForEveryKind(t *testing.T) {
	kinds := []domain.ErrorKind{
		domain.KindValidation, domain.KindParse, domain.KindCredential, domain.KindPermission,
		domain.KindQuotaExceeded, domain.KindResourceExhausted, domain.KindUnknownProvider,
	}
	for _, kind := range kinds {
		if msg := UserMessage(kind, ""); msg == "" {
			t.Fatalf("empty message for kind %q", kind)
		}
	}
	if got := UserMessage(domain.KindUnknownProvider, "socket closed"); got != "Analysis error: socket closed" {
		t.Fatalf("unexpected unknown message %q", got)
	}
}
