package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/hoot/internal/common"
)

const unknownErrorMessage = "An unknown error occurred"

// errorBody is the only error shape clients understand.
type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps sentinel errors to HTTP status codes. Errors matching none of
// them are server faults.
var statusOf = []struct {
	err    error
	status int
}{
	// storage failures may wrap anything, so they are matched first
	{common.ErrUploadFailed, http.StatusInternalServerError},
	{common.ErrPersistFailed, http.StatusInternalServerError},
	{common.ErrDeleteFailed, http.StatusInternalServerError},

	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrLoginRequired, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrLoginFailed, http.StatusUnauthorized},
	{common.ErrIncorrectPassword, http.StatusUnauthorized},
	{common.ErrInvalidSignature, http.StatusUnauthorized},

	{common.ErrorNotFound, http.StatusNotFound},

	{common.ErrFileTooLarge, http.StatusRequestEntityTooLarge},

	{common.ErrInvalidRequest, http.StatusBadRequest},
	{common.ErrNoFileProvided, http.StatusBadRequest},
	{common.ErrInvalidUsername, http.StatusBadRequest},
	{common.ErrInvalidEmail, http.StatusBadRequest},
	{common.ErrInvalidPassword, http.StatusBadRequest},
	{common.ErrPasswordMismatch, http.StatusBadRequest},
	{common.ErrEmailTaken, http.StatusBadRequest},
	{common.ErrInvalidCode, http.StatusBadRequest},
	{common.ErrLoggedOut, http.StatusBadRequest},
	{common.ErrFilenameRequired, http.StatusBadRequest},
	{common.ErrInvalidFileType, http.StatusBadRequest},
	{common.ErrQuotaExceeded, http.StatusBadRequest},
	{common.ErrDownloadFailed, http.StatusBadRequest},
	{common.ErrInvalidPatron, http.StatusBadRequest},
	{common.ErrLinkFailed, http.StatusBadRequest},
}

// classify returns the status for err and the sentinel it matched, if any.
func classify(err error) (int, error) {
	for _, e := range statusOf {
		if errors.Is(err, e.err) {
			return e.status, e.err
		}
	}
	return http.StatusInternalServerError, nil
}

// errorMessage is what the client sees. Client errors are reported as is.
// Server errors carry their detail only outside production.
func errorMessage(err error, status int, sentinel error, production bool) string {
	switch {
	case status < http.StatusInternalServerError:
		return capitalize(err.Error())
	case !production:
		return capitalize(err.Error())
	case sentinel != nil:
		return capitalize(sentinel.Error())
	default:
		return unknownErrorMessage
	}
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, result string) {
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

// writeError answers with the status and message for err. Server faults are
// logged with full detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, sentinel := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorMessage(err, status, sentinel, h.production)})
}
