// Package shared holds the JSON helpers every HTTP handler uses so error
// envelopes stay uniform across the surface.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	domainerrors "tramita/pkg/domain-errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Unknown
// errors become opaque 500s so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := string(domainerrors.CodeInternal)
	message := "internal error"

	var de *domainerrors.Error
	if errors.As(err, &de) {
		status = domainerrors.ToHTTPStatus(de.Code)
		code = string(de.Code)
		message = de.Message
	}
	WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": message,
	})
}
