package server

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/restlessgo/restless"
)

// Middleware wraps an http.Handler.
type Middleware = func(next http.Handler) http.Handler

// statusWriter captures the status code for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one structured line per request.
func requestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// negotiate enforces JSON:API content negotiation: write requests must
// declare the JSON:API media type without parameters, and clients that
// accept JSON:API only with parameters are refused.
func negotiate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut:
			if !acceptableContentType(r.Header.Get("Content-Type")) {
				writeError(w, restless.NewUnsupportedMediaType())
				return
			}
		}

		if !acceptableAccept(r.Header.Get("Accept")) {
			writeError(w, restless.NewNotAcceptable())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func acceptableContentType(contentType string) bool {
	return strings.TrimSpace(contentType) == restless.MediaType
}

// acceptableAccept returns false only when every JSON:API entry in the
// Accept header carries media type parameters.
func acceptableAccept(accept string) bool {
	if accept == "" {
		return true
	}

	sawJSONAPI := false
	for _, entry := range strings.Split(accept, ",") {
		mediaType, _, parameterized := strings.Cut(strings.TrimSpace(entry), ";")
		mediaType = strings.TrimSpace(mediaType)

		if mediaType == "*/*" || mediaType == "application/*" {
			return true
		}
		if mediaType != restless.MediaType {
			continue
		}
		sawJSONAPI = true
		if !parameterized {
			return true
		}
	}

	return !sawJSONAPI
}
