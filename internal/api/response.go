package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/erazemk/orozarna/internal/custody"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, target any) error {
	if err := decodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var kindStatus = map[custody.Kind]int{
	custody.KindValidation: http.StatusBadRequest,
	custody.KindNotFound:   http.StatusNotFound,
	custody.KindConflict:   http.StatusConflict,
	custody.KindForbidden:  http.StatusForbidden,
	custody.KindInternal:   http.StatusInternalServerError,
}

// serviceError answers with the status for err's kind and its stable code.
// Internal errors are logged and not echoed to the client.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := custody.KindOf(err)
	status := kindStatus[kind]
	if kind == custody.KindInternal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", RequestID(r.Context()), "error", err)
		jsonError(w, status, "internal error")
		return
	}
	jsonResponse(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
		"code":  custody.CodeOf(err),
	})
}
