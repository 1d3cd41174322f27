package server

import (
	"errors"
	"net/http"

	"github.com/jrsteele09/amq-songs-gateway/csrf"
	"github.com/jrsteele09/amq-songs-gateway/deviceflow"
	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"github.com/rs/zerolog"
)

type deviceCodeRequest struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

type pollRequest struct {
	ClientID   string `json:"client_id"`
	DeviceCode string `json:"device_code"`
}

// CSRFHandler returns the token for the current session and request binder.
func (s *Server) CSRFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential := csrf.SessionCredential(r)
		if credential == "" {
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"csrf": csrf.DeriveToken(credential, csrf.Binder(r))})
	}
}

const maxLoginBodyBytes = 4 << 10

// decodeLoginBody reads a small device-flow request body. An oversized body
// is an error; an unreadable one is treated as empty, so the handler then
// fails on its missing fields.
func decodeLoginBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	err := decodeJSONBody(r, v)
	if errors.Is(err, apperrors.ErrPayloadTooLarge) {
		return err
	}
	return nil
}

// DeviceCodeHandler starts a device-flow login. The upstream answer is
// passed through.
func (s *Server) DeviceCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deviceCodeRequest
		if err := decodeLoginBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		dc, err := s.devices.Start(r.Context(), req.ClientID, req.Scope)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dc)
	}
}

// PollHandler polls a device-flow login once. On completion it sets the
// session cookie and returns the profile with a CSRF token.
func (s *Server) PollHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pollRequest
		if err := decodeLoginBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := s.devices.Poll(r.Context(), req.ClientID, req.DeviceCode, csrf.Binder(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		switch res.Status {
		case deviceflow.StatusPending, deviceflow.StatusSlowDown:
			writeJSON(w, http.StatusOK, map[string]string{"status": string(res.Status)})
		default:
			csrf.SetSessionCookie(w, res.Token, s.config.GetSessionTTL())
			zerolog.Ctx(r.Context()).Info().Str("login", res.User.Login()).Msg("Device flow login completed")
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":   true,
				"user": res.User,
				"csrf": res.CSRF,
			})
		}
	}
}

// AuthMeHandler reports the session user and whether they may commit.
func (s *Server) AuthMeHandler() http.HandlerFunc {
	loggedOut := map[string]bool{"loggedIn": false}
	return func(w http.ResponseWriter, r *http.Request) {
		credential := csrf.SessionCredential(r)
		if credential == "" {
			writeJSON(w, http.StatusOK, loggedOut)
			return
		}

		user, err := s.store.GetUser(r.Context(), credential)
		if errors.Is(err, apperrors.ErrUnauthorized) {
			// revoked or expired upstream
			csrf.ClearSessionCookie(w)
			writeJSON(w, http.StatusOK, loggedOut)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		perms, err := s.store.GetRepoPermissions(r.Context(), credential)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Repository permissions unavailable, assuming read only")
			perms = &upstream.RepoPermissions{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"loggedIn": true,
			"user":     user,
			"canPush":  perms.CanWrite(user.Login(), s.config.GetOwner()),
		})
	}
}

// LogoutHandler clears the session cookie. Nothing is held server side.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		csrf.ClearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}
