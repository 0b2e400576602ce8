package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"podium/cmd/internal/fault"
)

// errorBody is the serialized error payload.
type errorBody struct {
	Error string `json:"error"`
}

// writeError is the single catch point for core faults. Configuration
// faults (and unclassified errors) are logged with their real cause but
// surfaced as an opaque internal error; every other kind carries no secrets
// and is safe to surface verbatim.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := fault.KindOf(err)

	status := http.StatusInternalServerError
	msg := "internal error"

	switch kind {
	case fault.Authentication:
		status, msg = http.StatusUnauthorized, err.Error()
	case fault.Authorization:
		status, msg = http.StatusForbidden, err.Error()
	case fault.NotFound:
		status, msg = http.StatusNotFound, err.Error()
	case fault.Validation:
		status, msg = http.StatusBadRequest, err.Error()
	case fault.Configuration:
		log.Error("api.fault.configuration", "err", err)
	default:
		log.Error("api.fault.internal", "err", err)
	}

	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
