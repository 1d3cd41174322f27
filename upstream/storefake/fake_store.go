// Package storefake is an in-memory upstream.Store for tests. It keeps one
// file with a revision counter, honours conditional reads and rejects stale
// writes the way the real store does.
package storefake

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
)

var _ upstream.Store = (*FakeStore)(nil)

type FakeStore struct {
	lock sync.RWMutex

	content  []byte
	sha      string
	revision int

	users       map[string]upstream.User
	permissions map[string]*upstream.RepoPermissions

	pollAnswers   map[string][]pollAnswer
	deviceCode    *upstream.DeviceCode
	deviceCodeErr error

	conflictsPending int
	getFileErr       error
	putFileErr       error
	beforePut        func()

	getFileCalls int
	putFileCalls int
	lastPut      upstream.PutRequest
	writeTokens  []string
}

type pollAnswer struct {
	token *upstream.DeviceToken
	err   error
}

// New returns a store holding content at revision 1.
func New(content string) *FakeStore {
	s := &FakeStore{
		users:       make(map[string]upstream.User),
		permissions: make(map[string]*upstream.RepoPermissions),
		pollAnswers: make(map[string][]pollAnswer),
	}
	s.setContentLocked([]byte(content))
	return s
}

func (s *FakeStore) setContentLocked(content []byte) {
	s.revision++
	s.content = append([]byte(nil), content...)
	sum := sha1.Sum(append([]byte(fmt.Sprintf("%d:", s.revision)), content...))
	s.sha = hex.EncodeToString(sum[:])
}

func (s *FakeStore) etagLocked() string {
	return `"` + s.sha + `"`
}

// SetContent replaces the file out of band, as a concurrent writer would.
func (s *FakeStore) SetContent(content string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.setContentLocked([]byte(content))
}

func (s *FakeStore) Content() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return string(s.content)
}

func (s *FakeStore) SHA() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.sha
}

// ConflictOnNextPuts makes the next n writes fail with a 409 after moving the
// file to a new revision, so a retry must re-read before it can succeed.
func (s *FakeStore) ConflictOnNextPuts(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.conflictsPending = n
}

// BeforePut runs fn at the start of every write, outside the lock.
func (s *FakeStore) BeforePut(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.beforePut = fn
}

// FailGetFile makes reads answer with the given upstream status until cleared
// with status 0.
func (s *FakeStore) FailGetFile(status int, body string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.getFileErr = statusError(status, body)
}

func (s *FakeStore) FailPutFile(status int, body string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.putFileErr = statusError(status, body)
}

func statusError(status int, body string) error {
	if status == 0 {
		return nil
	}
	return &apperrors.UpstreamError{Status: status, Body: body}
}

func (s *FakeStore) GetFileCalls() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.getFileCalls
}

func (s *FakeStore) PutFileCalls() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.putFileCalls
}

func (s *FakeStore) LastPut() upstream.PutRequest {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastPut
}

func (s *FakeStore) GetFile(_ context.Context, req upstream.FileRequest) (*upstream.File, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.getFileCalls++

	if s.getFileErr != nil {
		return nil, fmt.Errorf("[storefake GetFile] %w", s.getFileErr)
	}
	if req.ETag != "" && req.ETag == s.etagLocked() {
		return nil, apperrors.ErrNotModified
	}
	return &upstream.File{
		Content: append([]byte(nil), s.content...),
		SHA:     s.sha,
		ETag:    s.etagLocked(),
	}, nil
}

func (s *FakeStore) PutFile(_ context.Context, req upstream.PutRequest) (*upstream.PutResult, error) {
	s.lock.RLock()
	hook := s.beforePut
	s.lock.RUnlock()
	if hook != nil {
		hook()
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.putFileCalls++
	s.lastPut = req

	if s.putFileErr != nil {
		return nil, fmt.Errorf("[storefake PutFile] %w", s.putFileErr)
	}
	if s.conflictsPending > 0 {
		s.conflictsPending--
		s.setContentLocked(s.content)
		return nil, &apperrors.UpstreamError{Status: http.StatusConflict, Body: "is at " + s.sha + " but expected " + req.SHA}
	}
	if req.SHA != s.sha {
		return nil, &apperrors.UpstreamError{Status: http.StatusConflict, Body: "is at " + s.sha + " but expected " + req.SHA}
	}

	s.setContentLocked(req.Content)
	s.writeTokens = append(s.writeTokens, req.Token)
	return &upstream.PutResult{SHA: s.sha, CommitSHA: "commit-" + s.sha[:8]}, nil
}

// AddUser registers token as belonging to user with the given repository
// permissions. A nil perms answers with no push access.
func (s *FakeStore) AddUser(token string, user upstream.User, perms *upstream.RepoPermissions) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.users[token] = user
	if perms == nil {
		perms = &upstream.RepoPermissions{Pull: true}
	}
	s.permissions[token] = perms
}

func (s *FakeStore) GetUser(_ context.Context, token string) (upstream.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	user, ok := s.users[token]
	if !ok {
		return nil, &apperrors.UpstreamError{Status: http.StatusUnauthorized, Body: `{"message":"Bad credentials"}`}
	}
	return user, nil
}

func (s *FakeStore) GetRepoPermissions(_ context.Context, token string) (*upstream.RepoPermissions, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	perms, ok := s.permissions[token]
	if !ok {
		return nil, &apperrors.UpstreamError{Status: http.StatusUnauthorized, Body: `{"message":"Bad credentials"}`}
	}
	return perms, nil
}

// SetDeviceCode scripts the answer to StartDeviceFlow.
func (s *FakeStore) SetDeviceCode(dc *upstream.DeviceCode, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.deviceCode = dc
	s.deviceCodeErr = err
}

func (s *FakeStore) StartDeviceFlow(_ context.Context, clientID, _ string) (*upstream.DeviceCode, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.deviceCodeErr != nil {
		return nil, s.deviceCodeErr
	}
	if s.deviceCode == nil {
		return &upstream.DeviceCode{
			DeviceCode:      "device-" + clientID,
			UserCode:        "ABCD-1234",
			VerificationURI: "https://github.com/login/device",
			ExpiresIn:       900,
			Interval:        5,
		}, nil
	}
	dc := *s.deviceCode
	return &dc, nil
}

// QueuePollError appends an OAuth error code to the answers for deviceCode.
func (s *FakeStore) QueuePollError(deviceCode, code string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pollAnswers[deviceCode] = append(s.pollAnswers[deviceCode], pollAnswer{err: &upstream.DeviceFlowError{Code: code}})
}

// QueuePollToken appends a successful answer for deviceCode.
func (s *FakeStore) QueuePollToken(deviceCode, accessToken string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pollAnswers[deviceCode] = append(s.pollAnswers[deviceCode], pollAnswer{
		token: &upstream.DeviceToken{AccessToken: accessToken, TokenType: "bearer", Scope: "public_repo"},
	})
}

// PollDeviceFlow pops the next queued answer. Once the queue is drained the
// last answer repeats; an unknown device code is answered as expired.
func (s *FakeStore) PollDeviceFlow(_ context.Context, _, deviceCode string) (*upstream.DeviceToken, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	answers := s.pollAnswers[deviceCode]
	if len(answers) == 0 {
		return nil, &upstream.DeviceFlowError{Code: upstream.CodeExpiredToken}
	}
	next := answers[0]
	if len(answers) > 1 {
		s.pollAnswers[deviceCode] = answers[1:]
	}
	return next.token, next.err
}

// WriteTokens returns the credentials of every accepted write, oldest first.
func (s *FakeStore) WriteTokens() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]string(nil), s.writeTokens...)
}
