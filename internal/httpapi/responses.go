package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/garl-network/trust-ledger/internal/apierr"
)

// errorBody is the wire-level error envelope: a stable code plus a human
// message, optional details, never the internal cause.
type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError translates any error to the documented HTTP status and JSON
// body. Non-*apierr.Error values are never leaked to the caller and are
// reported as a generic internal error.
func writeError(w http.ResponseWriter, err error) {
	if svcErr, ok := apierr.As(err); ok {
		writeJSON(w, svcErr.HTTPStatus, errorBody{
			Code:    string(svcErr.Code),
			Message: svcErr.Message,
			Details: svcErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, apierr.Validation("body", "malformed or unexpected JSON: "+err.Error()))
		return false
	}
	return true
}
