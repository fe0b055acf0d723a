package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parcelbox-dev/parcelbox-core/internal/parcel"
)

// Error is the JSON body returned for every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Parcel carries the blocking parcel id when a delivery is refused
	// because the box is occupied.
	Parcel string `json:"parcel,omitempty"`
}

// Machine-readable error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInvalidState = "invalid_state"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// writeTransitionError translates the parcel error taxonomy into HTTP
// statuses. Occupied boxes get a 409 carrying the blocking parcel id so
// couriers can report what is in the way.
func writeTransitionError(w http.ResponseWriter, err error) {
	var occupied *parcel.OccupiedError
	switch {
	case errors.As(err, &occupied):
		writeJSON(w, http.StatusConflict, Error{
			Status:  http.StatusConflict,
			Code:    ErrCodeConflict,
			Message: occupied.Error(),
			Parcel:  occupied.BlockingParcelID,
		})
	case errors.Is(err, parcel.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, parcel.ErrForbidden):
		writeForbidden(w, err.Error())
	case errors.Is(err, parcel.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, parcel.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, err.Error())
	case errors.Is(err, parcel.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "temporarily unavailable, retry")
	default:
		writeInternalError(w)
	}
}
