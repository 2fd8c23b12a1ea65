package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/jobboard/internal/apperror"
	"github.com/sakif/jobboard/internal/auth"
)

// errorPage is the data of error.html.
type errorPage struct {
	Page
	Status  int
	Message string
}

// writeJSON sends a JSON response with the given status code. Only the
// health check speaks JSON; every other route renders HTML.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to an HTTP status and the message shown on
// the error page. Unknown errors become a 500 with a generic message; their
// details only go to the log.
func statusFor(err error) (int, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "Something went wrong on our side."
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusUnprocessableEntity, appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "The page you are looking for does not exist."
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, appErr.Message
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, appErr.Message
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, appErr.Message
	case errors.Is(err, apperror.ErrPublish):
		return http.StatusBadGateway, appErr.Message
	}
	return http.StatusInternalServerError, "Something went wrong on our side."
}

// renderError renders the error page for err.
func (v *Views) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		v.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	_, signedIn := auth.UserIDFromContext(r.Context())
	v.render(w, status, "error.html", errorPage{
		Page:    Page{Title: http.StatusText(status), SignedIn: signedIn},
		Status:  status,
		Message: message,
	})
}
