package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrsteele09/amq-songs-gateway/commit"
	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/rs/zerolog"
)

const contentTypeJSON = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeError renders err with the status its taxonomy maps to. Server-side
// failures are logged against the request.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	var nf *commit.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, status, map[string]any{
			"error":         nf.Error(),
			"available_ids": nf.AvailableIDs,
		})
		return
	}
	writeJSONError(w, apperrors.Message(err), status)
}

// decodeJSONBody reads a JSON object into v. Numbers are kept verbatim.
func decodeJSONBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Newf(apperrors.ErrPayloadTooLarge, "Payload too large")
		}
		return apperrors.Newf(apperrors.ErrInvalidRequest, "Invalid JSON body")
	}
	return nil
}
