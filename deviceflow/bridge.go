// Package deviceflow fronts the OAuth device authorization grant. It holds
// no state between calls: the device code travels with the client.
package deviceflow

import (
	"context"
	"errors"

	"github.com/jrsteele09/amq-songs-gateway/csrf"
	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"github.com/rs/zerolog/log"
)

// Status is the state of a poll that has not failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSlowDown  Status = "slow_down"
	StatusCompleted Status = "completed"
)

// PollResult is a non-terminal poll answer, or a completed login carrying
// the new session credential.
type PollResult struct {
	Status Status
	Token  string
	User   upstream.User
	CSRF   string
}

type Bridge struct {
	store           upstream.Store
	defaultClientID string
	defaultScope    string
}

type Option func(*Bridge)

// WithDefaultClientID is used when a caller omits client_id.
func WithDefaultClientID(id string) Option {
	return func(b *Bridge) { b.defaultClientID = id }
}

func WithDefaultScope(scope string) Option {
	return func(b *Bridge) { b.defaultScope = scope }
}

func NewBridge(store upstream.Store, opts ...Option) *Bridge {
	b := &Bridge{store: store}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) clientID(id string) string {
	if id == "" {
		return b.defaultClientID
	}
	return id
}

// Start asks upstream for a device and user code.
func (b *Bridge) Start(ctx context.Context, clientID, scope string) (*upstream.DeviceCode, error) {
	clientID = b.clientID(clientID)
	if clientID == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Missing client_id")
	}
	if scope == "" {
		scope = b.defaultScope
	}

	dc, err := b.store.StartDeviceFlow(ctx, clientID, scope)
	if err != nil {
		var dfe *upstream.DeviceFlowError
		if errors.As(err, &dfe) {
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "%s", dfe.Code)
		}
		return nil, apperrors.Wrapf(err, "[deviceflow Start]")
	}
	return dc, nil
}

// Poll makes one token request. binder scopes the CSRF token returned with
// a completed login.
func (b *Bridge) Poll(ctx context.Context, clientID, deviceCode, binder string) (*PollResult, error) {
	clientID = b.clientID(clientID)
	if clientID == "" || deviceCode == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "Missing params")
	}

	tok, err := b.store.PollDeviceFlow(ctx, clientID, deviceCode)
	if err != nil {
		var dfe *upstream.DeviceFlowError
		if !errors.As(err, &dfe) {
			return nil, apperrors.Wrapf(err, "[deviceflow Poll]")
		}
		switch dfe.Code {
		case upstream.CodeAuthorizationPending:
			return &PollResult{Status: StatusPending}, nil
		case upstream.CodeSlowDown:
			return &PollResult{Status: StatusSlowDown}, nil
		case upstream.CodeExpiredToken:
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "expired")
		case upstream.CodeNoAccessToken:
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "No access_token")
		default:
			return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "%s", dfe.Code)
		}
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidRequest, "No access_token")
	}

	res := &PollResult{
		Status: StatusCompleted,
		Token:  tok.AccessToken,
		CSRF:   csrf.DeriveToken(tok.AccessToken, binder),
	}
	// the device code is spent, so a profile failure must not lose the login
	user, err := b.store.GetUser(ctx, tok.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("Login completed but the user profile could not be fetched")
		return res, nil
	}
	res.User = user
	return res, nil
}
