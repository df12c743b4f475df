package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// Error codes returned in the JSON error body.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeInvalidRating   = "invalid_rating"
	CodeInvalidMode     = "invalid_mode"
	CodeInventoryFull   = "inventory_full"
	CodeGeneratorFailed = "generator_failed"
	CodeInternalError   = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeBadRequest),
	sentinelHandler(domain.ErrInvalidRating, http.StatusBadRequest, CodeInvalidRating),
	sentinelHandler(domain.ErrInvalidMode, http.StatusBadRequest, CodeInvalidMode),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	sentinelHandler(domain.ErrInventoryFull, http.StatusConflict, CodeInventoryFull),
	sentinelHandler(domain.ErrGeneratorFailed, http.StatusBadGateway, CodeGeneratorFailed),
}

// clientSentinels are errors whose full message is safe to return: it only
// describes the caller's own input.
var clientSentinels = []error{
	domain.ErrInvalidRequest,
	domain.ErrInvalidRating,
	domain.ErrInvalidMode,
}

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range clientSentinels {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	for _, s := range []error{domain.ErrNotFound, domain.ErrInventoryFull, domain.ErrGeneratorFailed} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
