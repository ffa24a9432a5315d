package server

import (
	"encoding/json"
	"net/http"

	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Status    string          `json:"status"`               // "ok" or "error"
	Data      json.RawMessage `json:"data,omitempty"`       // success payload
	Error     *ErrorBody      `json:"error,omitempty"`      // error details
	RequestID string          `json:"request_id,omitempty"` // correlates with server logs
}

// ErrorBody describes a failed call.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code engine.ErrorCode) int {
	switch code {
	case engine.ErrCodeValidation:
		return http.StatusBadRequest
	case engine.ErrCodeNotFound:
		return http.StatusNotFound
	case engine.ErrCodeConstraint:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeOK(w http.ResponseWriter, r *http.Request, data ir.IRValue) {
	raw, err := ir.MarshalIRValue(data)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, &engine.Error{
			Code:    engine.ErrCodeStorage,
			Message: "encode response: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: raw, RequestID: engine.RequestID(r.Context())})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, e *engine.Error) {
	writeJSON(w, status, Response{
		Status: "error",
		Error: &ErrorBody{
			Code:    string(e.Code),
			Message: e.Message,
			Details: e.Details,
		},
		RequestID: engine.RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
