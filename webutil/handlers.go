package webutil

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// AppHandler represents a handler function that returns an error.
type AppHandler func(w http.ResponseWriter, r *http.Request) error

// MakeHandler adapts an AppHandler to the standard http.HandlerFunc signature.
// It executes the AppHandler and handles any returned error by logging appropriately
// and sending a standardized JSON error response.
//
// The ResponseWriter is wrapped so an error response is suppressed only
// when the handler already wrote a status line. Header mutations by
// upstream middleware (e.g. a default Content-Type) do not count as a
// written response.
func MakeHandler(handler AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		err := handler(ww, r)
		if err != nil {
			var httpErr *HTTPError // Use pointer type for errors.As with our HTTPError constructors
			var publicMessage string
			var statusCode int

			switch {
			case errors.As(err, &httpErr):
				// This is an HTTPError we explicitly created (e.g., ErrBadRequest, ErrNotFound)
				statusCode = httpErr.Code
				publicMessage = httpErr.Message
				logLevel := slog.LevelWarn // Treat client errors as warnings server-side
				if statusCode >= 500 {
					logLevel = slog.LevelError
				}
				attrs := []any{
					"code", httpErr.Code,
					"msg", httpErr.Message,
					"path", r.URL.Path,
					"method", r.Method,
				}
				// Include the underlying cause when it adds information
				// beyond the public message.
				if cause := errors.Unwrap(httpErr); cause != nil && cause.Error() != publicMessage {
					attrs = append(attrs, "cause", cause)
				}
				slog.Log(r.Context(), logLevel, "Client error response", attrs...)

			case errors.Is(err, sql.ErrNoRows):
				// Specific handling for sql.ErrNoRows from datastore layer -> 404 Not Found
				statusCode = http.StatusNotFound
				publicMessage = "Resource not found"
				slog.Info("Resource not found (sql.ErrNoRows)", "path", r.URL.Path, "method", r.Method, "error", err)

			default:
				// Any other error is treated as an internal server error
				statusCode = http.StatusInternalServerError
				publicMessage = "Internal Server Error"
				slog.Error("Unhandled internal error", "path", r.URL.Path, "method", r.Method, "error", err)
			}

			// A status line already on the wire means the handler wrote a
			// response before erroring; nothing more can be sent.
			if ww.Status() != 0 {
				slog.Warn("Handler returned error after writing response",
					"path", r.URL.Path,
					"method", r.Method,
					"status", ww.Status(),
					"error", err,
				)
				return
			}

			// Send the standardized JSON error response
			RespondWithJSON(ww, statusCode, map[string]string{"error": publicMessage})
		}
		// If err is nil, the handler is assumed to have written its own successful response.
	}
}
