// Package logger holds the process-wide zap sugared logger and the request
// logging middleware used by the HTTP surface.
package logger

import (
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// Log is the global zap.SugaredLogger. It must be initialized via Init()
// before the first request is served.
var Log *zap.SugaredLogger

// Init builds the global logger at the given level.
func Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = zl.Sugar()

	return nil
}

// Sync flushes any buffered log entries. Syncing a terminal on shutdown
// yields os.ErrInvalid, which is not a failure.
func Sync() error {
	if err := Log.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}

	return nil
}

// statusRecorder captures the status code and body size a handler wrote, so
// the middleware can log them after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.size += size

	return size, err
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.status = statusCode
}

// WithLoggingHTTPMiddleware logs every request with its method, URI, response
// status, duration and body size. Form values and cookies are never logged;
// they carry credentials and tokens.
func WithLoggingHTTPMiddleware(h http.Handler) http.Handler {
	logFn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(recorder, r)

		Log.Infow("request handled",
			"uri", r.RequestURI,
			"method", r.Method,
			"status", recorder.status,
			"duration", time.Since(start),
			"size", recorder.size,
		)
	}

	return http.HandlerFunc(logFn)
}
