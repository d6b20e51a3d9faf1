// Package httputil writes JSON responses and decodes JSON bodies for
// handlers, translating domain error codes to statuses.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "eda/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// WriteJSON writes v with status. Encoding errors are ignored; the header
// is already sent by then.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteResult writes {"result": msg}.
func WriteResult(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"result": msg})
}

// WriteError maps err's domain code to a status and reports the full error
// text as the result.
func WriteError(w http.ResponseWriter, err error) {
	WriteResult(w, dErrors.HTTPStatus(dErrors.CodeOf(err)), err.Error())
}

// DecodeJSON reads at most MaxBodyBytes from r into dst. Unknown fields are
// allowed. Every failure is a CodeBadRequest error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		case errors.As(err, &tooLarge):
			return dErrors.New(dErrors.CodeBadRequest, "request body too large")
		default:
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
		}
	}
	return nil
}
