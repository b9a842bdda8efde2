package web

// errors.go turns errors into responses. The technical error is logged with
// the request ID; the client gets the mapped user message, as JSON for API
// routes and HTMX/JSON clients, as an HTML page otherwise.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/ecsv/internal/core"
	"github.com/JonMunkholm/ecsv/internal/ecsv"
	"github.com/JonMunkholm/ecsv/internal/logging"
	"github.com/JonMunkholm/ecsv/internal/web/templates"
)

var errNoFile = errors.New("no file provided")

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, core.ErrNoDatabase):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrAlreadyRolledBack),
		errors.Is(err, core.ErrImportNotActive),
		errors.Is(err, core.ErrTableMismatch):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidTableName),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, ecsv.ErrInvalidSignature),
		errors.Is(err, ecsv.ErrMalformedHeaderLine),
		errors.Is(err, ecsv.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ecsv.ErrIO):
		return http.StatusBadRequest
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	}
	switch core.MapError(err).Code {
	case "FILE002", "TBL003":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message. A status of 0
// is derived from err.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", status, "error", err.Error(), "code", msg.Code}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		resp := errorResponse(msg)
		resp.RequestID = middleware.GetReqID(r.Context())
		writeJSON(w, status, resp)
		return
	}

	component := templates.ErrorPage(msg.Message, msg.Action, msg.Code)
	if isHTMX(r) {
		component = templates.ErrorAlert(msg.Message, msg.Action, msg.Code)
	}
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

// respondErrorJSON writes msg without logging, for middleware.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse(msg))
}

func errorResponse(msg core.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client expects JSON. API routes default to
// JSON unless the request comes from HTMX.
func wantsJSON(r *http.Request) bool {
	if isHTMX(r) {
		return false
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// wantsRedirect reports whether a plain browser form post sent the request.
func wantsRedirect(r *http.Request) bool {
	return !isHTMX(r) && strings.Contains(r.Header.Get("Accept"), "text/html")
}
