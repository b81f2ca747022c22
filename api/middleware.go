package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"CoopLedgerSaas/api/constants"
	"CoopLedgerSaas/internal/logger"

	"go.uber.org/zap"
)

type contextKey string

const operatorKey contextKey = "operator"

// Operator is the authenticated caller as reported by the upstream auth
// gateway.
type Operator struct {
	ID   string
	Name string
}

// Label is the name recorded in audit columns.
func (o Operator) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ID
}

// OperatorMiddleware rejects requests that carry no X-User-Id and stores the
// operator in the request context.
func OperatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(constants.HeaderUserID))
		if id == "" {
			RespondWithError(w, nil, constants.ErrMissingOperator, http.StatusUnauthorized)
			return
		}
		op := Operator{ID: id, Name: strings.TrimSpace(r.Header.Get(constants.HeaderUserName))}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey, op)))
	})
}

// responseWriter captures the status code and, for failed requests, the body.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode >= http.StatusBadRequest && rw.body.Len() < 1024 {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps streaming handlers working behind the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// RequestLogger writes one log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client_ip", extractClientIP(r)),
			zap.String("user_id", r.Header.Get(constants.HeaderUserID)),
		}
		if rw.statusCode >= http.StatusBadRequest {
			fields = append(fields, zap.String("body", strings.TrimSpace(rw.body.String())))
			logger.L().Warn("request", fields...)
			return
		}
		logger.L().Info("request", fields...)
	})
}
