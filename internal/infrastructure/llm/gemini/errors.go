package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProviderError carries the canonical status name of a Gemini failure, so
// message-based classification upstream can recognise it.
type ProviderError struct {
	Operation string
	Status    string
	HTTPCode  int
	Reason    string
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "gemini error"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "gemini %s", e.Operation)
	if e.Status != "" {
		fmt.Fprintf(&b, ": %s", e.Status)
	}
	if e.HTTPCode > 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPCode)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " [%s]", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

var canonicalCodes = map[codes.Code]string{
	codes.InvalidArgument:    "INVALID_ARGUMENT",
	codes.Unauthenticated:    "UNAUTHENTICATED",
	codes.PermissionDenied:   "PERMISSION_DENIED",
	codes.ResourceExhausted:  "RESOURCE_EXHAUSTED",
	codes.DeadlineExceeded:   "DEADLINE_EXCEEDED",
	codes.Unavailable:        "UNAVAILABLE",
	codes.Internal:           "INTERNAL",
	codes.NotFound:           "NOT_FOUND",
	codes.FailedPrecondition: "FAILED_PRECONDITION",
	codes.Canceled:           "CANCELLED",
}

var httpStatusNames = map[int]string{
	http.StatusBadRequest:          "INVALID_ARGUMENT",
	http.StatusUnauthorized:        "UNAUTHENTICATED",
	http.StatusForbidden:           "PERMISSION_DENIED",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusTooManyRequests:     "RESOURCE_EXHAUSTED",
	http.StatusInternalServerError: "INTERNAL",
	http.StatusServiceUnavailable:  "UNAVAILABLE",
	http.StatusGatewayTimeout:      "DEADLINE_EXCEEDED",
}

// describeError wraps API failures into a ProviderError. Errors that carry no
// gRPC or HTTP status are wrapped with plain context.
func describeError(operation string, err error) error {
	if err == nil {
		return nil
	}

	pe := &ProviderError{Operation: operation, Err: err}
	var (
		apiErr  *apierror.APIError
		httpErr *googleapi.Error
	)
	switch {
	case errors.As(err, &apiErr):
		if code := apiErr.HTTPCode(); code > 0 {
			pe.HTTPCode = code
		}
		pe.Reason = apiErr.Reason()
		if st := apiErr.GRPCStatus(); st != nil {
			pe.Status = canonicalCodes[st.Code()]
		}
	case errors.As(err, &httpErr):
		pe.HTTPCode = httpErr.Code
		for _, item := range httpErr.Errors {
			if item.Reason != "" {
				pe.Reason = item.Reason
				break
			}
		}
	default:
		st, ok := status.FromError(err)
		if !ok {
			return fmt.Errorf("gemini %s: %w", operation, err)
		}
		pe.Status = canonicalCodes[st.Code()]
	}

	if pe.Status == "" {
		pe.Status = httpStatusNames[pe.HTTPCode]
	}
	return pe
}
