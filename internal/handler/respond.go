package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/mailbeforecart/internal/recovery"
)

// CSRFHeader carries the session's anti-replay token on state-changing
// operator requests.
const CSRFHeader = "X-CSRF-Token"

const maxBodyBytes = 65536

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, recovery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recovery.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, recovery.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, recovery.ErrAlreadyPurchased):
		return http.StatusConflict
	case errors.Is(err, recovery.ErrDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Server-side failures are logged and
// their detail withheld.
func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err)
		if status == http.StatusInternalServerError {
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
