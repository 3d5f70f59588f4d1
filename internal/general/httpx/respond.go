package httpx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"logistics/internal/general/logger"
)

var ErrUnsupportedMediaType = errors.New("content-type must be application/json")

// Responder writes JSON responses and logs failures under the request's id.
type Responder struct {
	logger *logger.Logger
}

func NewResponder(logger *logger.Logger) *Responder {
	return &Responder{logger: logger}
}

// JSON encodes data with status. A nil payload is written as {}.
func (resp *Responder) JSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	buf := []byte("{}")
	if data != nil {
		var err error
		buf, err = json.Marshal(data)
		if err != nil {
			resp.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// Error sends {"error": msg} and logs err at a level matching status.
func (resp *Responder) Error(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	switch {
	case status >= 500:
		action = "http_internal_error"
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		action = "validation_failed"
	case status == http.StatusUnsupportedMediaType:
		action = "unsupported_media_type"
	}
	if status >= 500 {
		resp.logger.Error(ctx, action, msg, err, nil)
	} else {
		details := map[string]any{"status": status}
		if err != nil {
			details["reason"] = err.Error()
		}
		resp.logger.Warn(ctx, action, msg, details)
	}

	type errBody struct {
		Error string `json:"error"`
	}
	resp.JSON(ctx, w, status, errBody{Error: msg})
}

// WithReqID extracts or generates a request ID, echoes it, and adds it to the context.
func (resp *Responder) WithReqID(w http.ResponseWriter, r *http.Request) context.Context {
	reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if reqID == "" {
		reqID = randID()
	}
	w.Header().Set("X-Request-ID", reqID)
	return resp.logger.WithRequestID(r.Context(), reqID)
}

// DecodeJSON strictly decodes a JSON body of at most 1 MiB into v.
// It writes the error response itself and reports whether decoding succeeded.
func (resp *Responder) DecodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, v any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		resp.Error(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", ErrUnsupportedMediaType)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			resp.Error(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		resp.Error(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// Health returns a minimal JSON health status payload.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	type body struct {
		Status string `json:"status"`
	}
	_ = json.NewEncoder(w).Encode(body{Status: "ok"})
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
