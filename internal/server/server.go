package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/logger"
)

// Request bodies are a rating or a question at most.
const maxBodyBytes = 16 << 10

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// Validator is a request body that can check itself.
type Validator interface {
	Validate() error
}

// DecodeValid reads a bounded JSON body into V and validates it. Unknown
// fields are rejected so a typo in the rendering layer shows up as a 400.
func DecodeValid[V Validator](w http.ResponseWriter, r *http.Request) (V, error) {
	var v V

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, cserrs.E(http.StatusBadRequest, fmt.Errorf("error decoding request: %w", err))
	}
	if err := v.Validate(); err != nil {
		return v, err
	}

	return v, nil
}

// AccessLogMiddleware tags the request context with a request id and logs the
// outcome, including the kind of error a handler returned.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.Ctx(r.Context(), slog.String("request_id", uuid.NewString()))

		rec := &outcomeRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		attrs := []any{
			"method", r.Method,
			"url", r.URL.String(),
			"duration", time.Since(start),
			"status_code", rec.code,
		}
		if rec.kind != "" {
			attrs = append(attrs, "error_kind", rec.kind)
		}
		slog.InfoContext(ctx, "request completed", attrs...)
	})
}

// Traps the status code and error kind for the access log.
type outcomeRecorder struct {
	http.ResponseWriter
	code int
	kind cserrs.Kind
}

func (w *outcomeRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Lets http.ResponseController reach the flusher underneath.
func (w *outcomeRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Status the rendering layer sees for an error of the given kind.
func statusFor(e *cserrs.Error) int {
	if e.Kind == cserrs.KindTransport {
		return http.StatusBadGateway // The conference API couldn't be reached
	}
	if e.Status < 400 || e.Status > 599 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	sErr := &cserrs.Error{}
	if !errors.As(err, &sErr) {
		slog.ErrorContext(r.Context(), "unstructured error", "error", err)
		sErr = cserrs.E(http.StatusInternalServerError, "internal server error")
	}
	if rec, ok := w.(*outcomeRecorder); ok {
		rec.kind = sErr.Kind
	}

	if err := WriteJSON(w, statusFor(sErr), sErr); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}

// ErrRouter is a newtype around a mux router that allows attaching handlers that return errors.
type ErrRouter struct {
	*mux.Router
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}
