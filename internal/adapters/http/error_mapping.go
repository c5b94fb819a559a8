package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/usecase"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrSessionNotFound), domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, errRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return mapKindToHTTPStatus(domain.KindOf(err))
}

func mapKindToHTTPStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNone:
		return http.StatusOK
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindParse:
		return http.StatusUnprocessableEntity
	case domain.KindCredential:
		return http.StatusUnauthorized
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindQuotaExceeded, domain.KindResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: err.Error()}
	if status != http.StatusNotFound && status != http.StatusRequestEntityTooLarge {
		resp.Kind = domain.KindOf(err)
		resp.Error = usecase.UserMessage(resp.Kind, err.Error())
	}
	writeJSON(w, status, resp)
}
