package github

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"golang.org/x/oauth2"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

func (c *Client) oauthConfig(clientID, scope string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: c.oauthURL + "/login/device/code",
			TokenURL:      c.oauthURL + "/login/oauth/access_token",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
	if scope != "" {
		cfg.Scopes = []string{scope}
	}
	return cfg
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// StartDeviceFlow requests a device and user code for clientID.
func (c *Client) StartDeviceFlow(ctx context.Context, clientID, scope string) (*upstream.DeviceCode, error) {
	resp, err := c.oauthConfig(clientID, scope).DeviceAuth(c.oauthContext(ctx))
	if err != nil {
		return nil, apperrors.Wrapf(translateOAuthError(err), "[github StartDeviceFlow]")
	}
	if resp.DeviceCode == "" {
		return nil, fmt.Errorf("[github StartDeviceFlow] %w: response carried no device_code", apperrors.ErrUpstream)
	}

	dc := &upstream.DeviceCode{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		Interval:                resp.Interval,
	}
	// DeviceAuthResponse keeps only the absolute expiry; rounding restores
	// the seconds the upstream sent.
	if !resp.Expiry.IsZero() {
		dc.ExpiresIn = int64(time.Until(resp.Expiry).Round(time.Second) / time.Second)
	}
	return dc, nil
}

// PollDeviceFlow makes one token request for deviceCode. Pending, slow_down
// and terminal answers come back as *upstream.DeviceFlowError.
func (c *Client) PollDeviceFlow(ctx context.Context, clientID, deviceCode string) (*upstream.DeviceToken, error) {
	// Exchange issues a single token request; overriding grant_type turns it
	// into the device grant.
	tok, err := c.oauthConfig(clientID, "").Exchange(c.oauthContext(ctx), "",
		oauth2.SetAuthURLParam("grant_type", deviceGrantType),
		oauth2.SetAuthURLParam("device_code", deviceCode),
	)
	if err != nil {
		return nil, apperrors.Wrapf(translateOAuthError(err), "[github PollDeviceFlow]")
	}

	scope, _ := tok.Extra("scope").(string)
	return &upstream.DeviceToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
		Expiry:      tok.Expiry,
	}, nil
}

func translateOAuthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			return &upstream.DeviceFlowError{Code: re.ErrorCode, Description: re.ErrorDescription}
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &apperrors.UpstreamError{Status: status, Body: strings.TrimSpace(string(re.Body))}
	}
	if strings.Contains(err.Error(), "missing access_token") {
		return &upstream.DeviceFlowError{Code: upstream.CodeNoAccessToken, Description: err.Error()}
	}
	return fmt.Errorf("%w: %w", apperrors.ErrUpstream, err)
}
