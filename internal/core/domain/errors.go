package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags every failure that crosses a core component boundary.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindValidation        ErrorKind = "validation_error"
	KindParse             ErrorKind = "parse_error"
	KindCredential        ErrorKind = "credential_error"
	KindPermission        ErrorKind = "permission_error"
	KindQuotaExceeded     ErrorKind = "quota_exceeded_error"
	KindResourceExhausted ErrorKind = "resource_exhausted_error"
	KindUnknownProvider   ErrorKind = "unknown_provider_error"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrParse             = errors.New("parse error")
	ErrCredential        = errors.New("credential error")
	ErrPermission        = errors.New("permission error")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrUnknownProvider   = errors.New("provider error")

	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindValidation, ErrValidation},
	{KindParse, ErrParse},
	{KindCredential, ErrCredential},
	{KindPermission, ErrPermission},
	{KindQuotaExceeded, ErrQuotaExceeded},
	{KindResourceExhausted, ErrResourceExhausted},
	{KindUnknownProvider, ErrUnknownProvider},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Sentinel returns the sentinel error for a kind, or nil for KindNone.
func (k ErrorKind) Sentinel() error {
	for _, s := range kindSentinels {
		if s.kind == k {
			return s.err
		}
	}
	if k == KindNone {
		return nil
	}
	return ErrUnknownProvider
}

// KindOf recovers the taxonomy kind of a wrapped error. Errors without a
// known sentinel are reported as KindUnknownProvider.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknownProvider
}
