// internal/middleware/logging.go

package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes the websocket upgrade through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, status and duration of each request.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a message when an authenticated client connects.
func LogWebSocketConnect(logger *logrus.Logger, r *http.Request, userID uuid.UUID, connID string) {
	logger.WithFields(logrus.Fields{
		"remote": r.RemoteAddr,
		"path":   r.URL.Path,
		"user":   userID,
		"conn":   connID,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a message when a WebSocket client disconnects.
func LogWebSocketDisconnect(logger *logrus.Logger, r *http.Request, userID uuid.UUID, connID string, err error) {
	fields := logrus.Fields{
		"remote": r.RemoteAddr,
		"path":   r.URL.Path,
		"user":   userID,
		"conn":   connID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
