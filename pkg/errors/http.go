package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTP status code mappings
var errorStatusCodes = map[error]int{
	ErrNotFound:         http.StatusNotFound,
	ErrInvalidInput:     http.StatusBadRequest,
	ErrInternalError:    http.StatusInternalServerError,
	ErrTimeout:          http.StatusGatewayTimeout,
	ErrUnavailable:      http.StatusServiceUnavailable,
	ErrPermissionDenied: http.StatusForbidden,
	ErrUnauthenticated:  http.StatusUnauthorized,
	ErrCanceled:         http.StatusRequestTimeout,

	// Domain-specific error mappings
	ErrEmptyTranscript:     http.StatusBadRequest,
	ErrTranscriptTooLarge:  http.StatusBadRequest,
	ErrMissingIdentifier:   http.StatusBadRequest,
	ErrNoProviderAvailable: http.StatusServiceUnavailable,
	ErrProviderFailure:     http.StatusBadGateway,
	ErrUnparseableResponse: http.StatusBadGateway,
	ErrStreamClosed:        http.StatusConflict,
}

// WriteError writes a standardized error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error) {
	var statusCode int
	var response map[string]interface{}

	var serr *Error
	if err == nil {
		statusCode = http.StatusInternalServerError
		response = map[string]interface{}{
			"error": "Unknown error",
		}
	} else if errors.As(err, &serr) {
		statusCode = HTTPStatusFromError(serr.original)
		response = serr.AsJSON()
	} else {
		statusCode = HTTPStatusFromError(err)
		response = map[string]interface{}{
			"error": err.Error(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
// by walking the unwrap chain until a mapped sentinel is found.
func HTTPStatusFromError(err error) int {
	for err != nil {
		if code, ok := errorStatusCodes[err]; ok {
			return code
		}

		unwrapped := errors.Unwrap(err)
		if unwrapped == err || unwrapped == nil {
			break
		}
		err = unwrapped
	}

	return http.StatusInternalServerError
}
