package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/chatrelay/internal/relayerr"
)

// writeJSON is the one response-writing path every handler uses,
// matching the teacher's internal/http handlers' single writeJSON
// helper convention.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Error("writeJSON encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeRelayErr maps a relayerr-typed error to its wire status code via
// errors.As, rather than string-matching, per the error-kind design:
// *relayerr.ValidationError -> 400, *relayerr.NotFoundError -> 404,
// anything else -> 500 with a generic detail.
func writeRelayErr(w http.ResponseWriter, err error) {
	var verr *relayerr.ValidationError
	var nerr *relayerr.NotFoundError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &nerr):
		writeError(w, http.StatusNotFound, nerr.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
