// Package middleware holds the HTTP middleware stack used by the API binary
package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	pstrings "rangeload/internal/platform/strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	chicors "github.com/go-chi/cors"
)

// RequestID assigns or propagates X-Request-ID and copies it into the logging context
func RequestID(next http.Handler) http.Handler {
	return chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		w.Header().Set(chimw.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequest(r.Context(), id)))
	}))
}

// AccessLogOptions configures the zerolog access log
type AccessLogOptions struct {
	// Slow marks requests taking >= Slow as warn level, 0 disables slow marking
	Slow time.Duration
}

type captureWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += n
	return n, err
}

// AccessLog logs method, path, status, elapsed, and bytes written
func AccessLog(opt AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(cw, r)

			elapsed := time.Since(start)
			log := logger.C(r.Context())
			evt := log.Info()
			if cw.status >= 500 || (opt.Slow > 0 && elapsed >= opt.Slow) {
				evt = log.Warn()
			}
			evt.Int("status", cw.status).
				Dur("elapsed", elapsed).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("bytes", cw.bytes).
				Msg("request done")
		})
	}
}

// RecoverJSON converts panics into the standard JSON 500 envelope and logs the stack
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.C(r.Context()).Error().
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			err := perr.PanicErrf("panic recovered")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status_code": http.StatusInternalServerError,
				"status":      http.StatusText(http.StatusInternalServerError),
				"code":        perr.CodeOf(err),
				"error":       err.Error(),
				"request_id":  chimw.GetReqID(r.Context()),
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSOptions is a narrow surface over go-chi/cors
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// CORS wraps go-chi/cors with the methods and headers the job API uses
func CORS(o CORSOptions) func(http.Handler) http.Handler {
	return chicors.Handler(chicors.Options{
		AllowedOrigins: o.AllowedOrigins,
		AllowedMethods: pstrings.IfEmpty(o.AllowedMethods, []string{"GET", "POST", "OPTIONS"}),
		AllowedHeaders: pstrings.IfEmpty(o.AllowedHeaders, []string{
			"Accept",
			"Authorization",
			"Content-Type",
			chimw.RequestIDHeader,
		}),
		ExposedHeaders:   pstrings.IfEmpty(o.ExposedHeaders, []string{chimw.RequestIDHeader}),
		AllowCredentials: o.AllowCredentials,
		MaxAge:           o.MaxAge,
	})
}

// Options configures the Defaults stack
type Options struct {
	// Slow is passed to AccessLog
	Slow time.Duration
	// CORS is mounted only when it names at least one origin
	CORS CORSOptions
}

// Defaults is the stack the API mounts, outermost first
func Defaults(opt Options) []func(http.Handler) http.Handler {
	mw := []func(http.Handler) http.Handler{
		chimw.RealIP,
		RequestID,
		AccessLog(AccessLogOptions{Slow: opt.Slow}),
		RecoverJSON,
	}
	if len(opt.CORS.AllowedOrigins) > 0 {
		mw = append(mw, CORS(opt.CORS))
	}
	return append(mw, chimw.Timeout(30*time.Second))
}
