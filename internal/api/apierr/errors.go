package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidation         = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeAdminDisabled      = "ADMIN_DISABLED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodePlayerNotFound     = "PLAYER_NOT_FOUND"
	CodePlayerExists       = "PLAYER_EXISTS"
	CodeSameIdentity       = "SAME_IDENTITY"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeGroupNotFound      = "GROUP_NOT_FOUND"
	CodeDeviceNotFound     = "DEVICE_NOT_FOUND"
	CodeNoPollTarget       = "NO_POLL_TARGET"
	CodeStaleEvent         = "STALE_EVENT"
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeUpstreamFailed     = "UPSTREAM_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status WriteError would use for err
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// validation errors carry the offending input in their message
	case model.IsValidation(err):
		return &httpError{http.StatusBadRequest, APIError{CodeValidation, err.Error()}}

	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrSessionNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeSessionNotFound, "No open session"}}
	case errors.Is(err, model.ErrGroupNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeGroupNotFound, "Group not found"}}
	case errors.Is(err, model.ErrDeviceNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeDeviceNotFound, "Device not found"}}
	case errors.Is(err, model.ErrPlayerExists):
		return &httpError{http.StatusConflict, APIError{CodePlayerExists, "A player with that name already exists"}}
	case errors.Is(err, model.ErrSameIdentity):
		return &httpError{http.StatusConflict, APIError{CodeSameIdentity, "Cannot merge a player into itself"}}
	case errors.Is(err, model.ErrNoPollTarget):
		return &httpError{http.StatusConflict, APIError{CodeNoPollTarget, "Group has no poll target configured"}}
	case errors.Is(err, model.ErrStaleEvent):
		return &httpError{http.StatusConflict, APIError{CodeStaleEvent, "Event is older than the last transition"}}
	case errors.Is(err, model.ErrInsufficientData):
		return &httpError{http.StatusUnprocessableEntity, APIError{CodeInsufficientData, "Not enough sessions"}}
	case errors.Is(err, model.ErrFetchFailed), errors.Is(err, model.ErrFeedUnavailable):
		return &httpError{http.StatusBadGateway, APIError{CodeUpstreamFailed, "Upstream server list unavailable"}}

	// Map auth errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid admin token"}}
	case errors.Is(err, auth.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	case errors.Is(err, auth.ErrAdminDisabled):
		return &httpError{http.StatusForbidden, APIError{CodeAdminDisabled, "Administrative routes are disabled"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
