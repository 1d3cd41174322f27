package server

import (
	"net/http"

	"github.com/jrsteele09/amq-songs-gateway/commit"
	"github.com/jrsteele09/amq-songs-gateway/csrf"
	"github.com/jrsteele09/amq-songs-gateway/dataset"
	"github.com/rs/zerolog"
)

const (
	cacheControlContent = "public, max-age=300, stale-while-revalidate=1800"
	cacheControlNoStore = "no-store"

	contentSourceHeader = "X-Content-Source"
)

// ContentHandler returns the dataset and its sha. ?fresh=1 bypasses the
// shared cache.
func (s *Server) ContentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fresh := r.URL.Query().Get("fresh") == "1"

		snap, err := s.content.GetContent(r.Context(), fresh)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if fresh {
			w.Header().Set("Cache-Control", cacheControlNoStore)
		} else {
			w.Header().Set("Cache-Control", cacheControlContent)
		}
		w.Header().Set(contentSourceHeader, string(snap.Source))

		items := snap.Items
		if items == nil {
			items = []dataset.Item{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"content": items,
			"sha":     snap.SHA,
		})
	}
}

// ContentMetaHandler returns only the current sha, for cheap change polling.
func (s *Server) ContentMetaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sha, err := s.content.GetVersion(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", cacheControlNoStore)
		writeJSON(w, http.StatusOK, map[string]string{"sha": sha})
	}
}

// CommitHandler applies one mutation for the session user.
func (s *Server) CommitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// a bulk replacement carries the whole collection plus the envelope
		r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.GetMaxPayloadBytes())*2)

		var req commit.Request
		if err := decodeJSONBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := s.commits.Commit(r.Context(), csrf.SessionCredential(r), req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		zerolog.Ctx(r.Context()).Info().
			Str("kind", string(res.Kind)).
			Str("sha", res.SHA).
			Int("attempts", res.Attempts).
			Msg("Commit written")
		w.Header().Set("Cache-Control", cacheControlNoStore)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sha": res.SHA})
	}
}
