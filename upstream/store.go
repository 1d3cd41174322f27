// Package upstream describes the remote version-controlled store holding the
// dataset, and the OAuth provider fronting it.
package upstream

import (
	"context"
	"strings"
	"time"
)

// Store is the remote collaborator. Implementations return errors from the
// shared taxonomy: ErrNotModified for a 304, an UpstreamError for any other
// non-2xx answer (matching ErrConflict on a rejected write).
type Store interface {
	GetFile(ctx context.Context, req FileRequest) (*File, error)
	PutFile(ctx context.Context, req PutRequest) (*PutResult, error)
	StartDeviceFlow(ctx context.Context, clientID, scope string) (*DeviceCode, error)
	PollDeviceFlow(ctx context.Context, clientID, deviceCode string) (*DeviceToken, error)
	GetUser(ctx context.Context, token string) (User, error)
	GetRepoPermissions(ctx context.Context, token string) (*RepoPermissions, error)
}

// FileRequest reads the dataset file. Token may be empty for anonymous reads;
// ETag makes the read conditional.
type FileRequest struct {
	Token string
	ETag  string
}

// File is the decoded transport envelope of the dataset file.
type File struct {
	Content []byte
	SHA     string
	ETag    string
}

// PutRequest writes Content over the revision identified by SHA.
type PutRequest struct {
	Token   string
	Message string
	Content []byte
	SHA     string
}

type PutResult struct {
	SHA       string
	CommitSHA string
}

// DeviceCode is the device-flow start answer, passed through to the caller.
type DeviceCode struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// DeviceToken is a successful device-flow poll.
type DeviceToken struct {
	AccessToken string
	TokenType   string
	Scope       string
	Expiry      time.Time
}

// DeviceFlowError is an OAuth error code answered by the token endpoint, such
// as authorization_pending or expired_token.
type DeviceFlowError struct {
	Code        string
	Description string
}

func (e *DeviceFlowError) Error() string {
	if e.Description == "" {
		return "device flow: " + e.Code
	}
	return "device flow: " + e.Code + ": " + e.Description
}

// User is the upstream profile, passed through verbatim.
type User map[string]any

// Login returns the account name, or "".
func (u User) Login() string {
	login, _ := u["login"].(string)
	return login
}

// RepoPermissions is the caller's access to the dataset repository.
type RepoPermissions struct {
	Admin bool `json:"admin"`
	Push  bool `json:"push"`
	Pull  bool `json:"pull"`
}

// CanWrite reports whether login may commit to a repository owned by owner.
func (p *RepoPermissions) CanWrite(login, owner string) bool {
	if p != nil && p.Push {
		return true
	}
	return login != "" && strings.EqualFold(login, owner)
}

// Device-flow error codes answered by the token endpoint, plus
// CodeNoAccessToken for a success answer that carried no token.
const (
	CodeAuthorizationPending = "authorization_pending"
	CodeSlowDown             = "slow_down"
	CodeExpiredToken         = "expired_token"
	CodeAccessDenied         = "access_denied"
	CodeNoAccessToken        = "no_access_token"
)
