package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid", apperrors.Newf(apperrors.ErrInvalidRequest, "Missing params"), http.StatusBadRequest},
		{"wrapped invalid", fmt.Errorf("[x] %w", apperrors.ErrInvalidRequest), http.StatusBadRequest},
		{"media type", apperrors.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{"too large", apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound},
		{"conflict", &apperrors.UpstreamError{Status: 409, Body: "sha mismatch"}, http.StatusConflict},
		{"rate limited", apperrors.ErrRateLimited, http.StatusTooManyRequests},
		{"upstream 401", &apperrors.UpstreamError{Status: 401}, http.StatusInternalServerError},
		{"upstream 502", &apperrors.UpstreamError{Status: 502}, http.StatusInternalServerError},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, apperrors.StatusCode(tc.err))
		})
	}
}

func TestUpstreamErrorMatching(t *testing.T) {
	err := fmt.Errorf("[github PutFile] %w", &apperrors.UpstreamError{Status: 409, Body: "conflict"})
	require.ErrorIs(t, err, apperrors.ErrUpstream)
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.NotErrorIs(t, err, apperrors.ErrUnauthorized)

	err = &apperrors.UpstreamError{Status: 401, Body: "Bad credentials"}
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Equal(t, "GitHub 401: Bad credentials", err.Error())
}

func TestMessage(t *testing.T) {
	require.Equal(t, "Missing client_id", apperrors.Message(fmt.Errorf("[deviceflow Start] %w", apperrors.Newf(apperrors.ErrInvalidRequest, "Missing client_id"))))
	require.Equal(t, "GitHub 500: oops", apperrors.Message(&apperrors.UpstreamError{Status: 500, Body: "oops"}))
	require.Equal(t, "unauthorized", apperrors.Message(fmt.Errorf("x: %w", apperrors.ErrUnauthorized)))
	require.Equal(t, "Internal error", apperrors.Message(fmt.Errorf("disk on fire")))
}

func TestWrapf(t *testing.T) {
	require.Nil(t, apperrors.Wrapf(nil, "ignored"))
	err := apperrors.Wrapf(apperrors.ErrNotFound, "[commit apply] id %s", "42")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, "[commit apply] id 42: not found", err.Error())
}
