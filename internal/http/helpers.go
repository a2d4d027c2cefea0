package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
)

// errorBody is the uniform error envelope for every non-2xx response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the business-rule sentinels onto HTTP status codes and
// emits the error envelope. Unknown errors become a generic 500 so internal
// detail never leaks to clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrGoalNotActive),
		errors.Is(err, core.ErrNotReversible),
		errors.Is(err, core.ErrAlreadyResolved),
		errors.Is(err, core.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
		msg = "storage unavailable"
	default:
		msg = "internal error"
	}

	writeJSON(w, status, errorBody{Error: msg, RequestID: requestIDFrom(r)})
}

// decodeJSON reads a request body into dst, rejecting unknown fields so
// client typos surface as 400s instead of silently dropped data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.Errorf(core.ErrValidation, "invalid request body: %v", err)
	}
	return nil
}

func queryInt64(r *http.Request, key string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.Errorf(core.ErrValidation, "invalid %s %q", key, raw)
	}
	return v, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v, err := queryInt64(r, key, int64(fallback))
	return int(v), err
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, core.Errorf(core.ErrValidation, "invalid %s %q: want RFC3339", key, raw)
	}
	return t, nil
}

func requireQuery(r *http.Request, key string) (string, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return "", core.Errorf(core.ErrValidation, "query parameter %s is required", key)
	}
	return v, nil
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

type requestIDKey struct{}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
