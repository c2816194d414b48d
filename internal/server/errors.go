package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/regroup/internal/shared"
)

type errorResponse struct {
	Error       errorBody `json:"error"`
	OperationID string    `json:"operationId,omitempty"` // set on conflicts and failed group creation
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeEngineError maps err and writes it, attaching operationID when known.
func writeEngineError(w http.ResponseWriter, err error, operationID string) {
	status, code := mapError(err)
	writeJSON(w, status, errorResponse{
		Error:       errorBody{Code: code, Message: err.Error()},
		OperationID: operationID,
	})
}

// mapError translates engine errors to an HTTP status and a stable error code.
func mapError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, shared.ErrDuplicateOperation):
		return http.StatusConflict, "DUPLICATE_OPERATION"
	case errors.Is(err, shared.ErrAlreadyProcessed):
		return http.StatusConflict, "ALREADY_PROCESSED"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, shared.ErrNothingPending):
		return http.StatusConflict, "NOTHING_PENDING"
	case errors.Is(err, shared.ErrNoActiveOperation):
		return http.StatusNotFound, "NO_ACTIVE_OPERATION"
	case errors.Is(err, shared.ErrNotInvited):
		return http.StatusUnprocessableEntity, "NOT_INVITED"
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, shared.ErrExternalCall), errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway, "EXTERNAL_CALL_FAILED"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
