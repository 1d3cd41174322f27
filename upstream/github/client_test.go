package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	apperrors "github.com/jrsteele09/amq-songs-gateway/internal/errors"
	"github.com/jrsteele09/amq-songs-gateway/upstream"
	"github.com/jrsteele09/amq-songs-gateway/upstream/github"
	"github.com/stretchr/testify/require"
)

const (
	testOwner    = "Monofly"
	testRepo     = "AMQ-Missing-Songs"
	testBranch   = "main"
	testPath     = "data/anime_songs.json"
	testToken    = "gho_user"
	testClientID = "Iv1.test"
)

func newTestClient(t *testing.T, handler http.Handler) *github.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return github.New(github.Options{
		APIURL:   srv.URL,
		OAuthURL: srv.URL,
		Owner:    testOwner,
		Repo:     testRepo,
		Branch:   testBranch,
		Path:     testPath,
	})
}

func contentsEnvelope(content, sha string) []byte {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	// GitHub wraps base64 at 60 columns
	if len(encoded) > 10 {
		encoded = encoded[:10] + "\n" + encoded[10:]
	}
	b, _ := json.Marshal(map[string]string{"sha": sha, "content": encoded, "encoding": "base64"})
	return b
}

func TestClient_GetFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/Monofly/AMQ-Missing-Songs/contents/data/anime_songs.json", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "main", r.URL.Query().Get("ref"))
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		if r.Header.Get("If-None-Match") == `"etag-1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		require.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		w.Header().Set("ETag", `"etag-1"`)
		_, _ = w.Write(contentsEnvelope(`[{"id":"1"}]`, "sha-1"))
	})
	c := newTestClient(t, mux)

	f, err := c.GetFile(context.Background(), upstream.FileRequest{Token: testToken})
	require.NoError(t, err)
	require.Equal(t, `[{"id":"1"}]`, string(f.Content))
	require.Equal(t, "sha-1", f.SHA)
	require.Equal(t, `"etag-1"`, f.ETag)

	_, err = c.GetFile(context.Background(), upstream.FileRequest{ETag: `"etag-1"`})
	require.ErrorIs(t, err, apperrors.ErrNotModified)
}

func TestClient_GetFileError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := c.GetFile(context.Background(), upstream.FileRequest{})
	require.ErrorIs(t, err, apperrors.ErrUpstream)

	var ue *apperrors.UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusNotFound, ue.Status)
	require.Contains(t, ue.Body, "Not Found")
	require.Regexp(t, `^\[github GetFile\]: GitHub 404`, err.Error())
}

func TestClient_PutFile(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/repos/Monofly/AMQ-Missing-Songs/contents/data/anime_songs.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["sha"] == "stale" {
			http.Error(w, `{"message":"is at sha-2 but expected stale"}`, http.StatusConflict)
			return
		}
		_, _ = w.Write([]byte(`{"content":{"sha":"sha-2"},"commit":{"sha":"commit-2"}}`))
	}))

	res, err := c.PutFile(context.Background(), upstream.PutRequest{
		Token:   testToken,
		Message: "Add entry",
		Content: []byte("[]\n"),
		SHA:     "sha-1",
	})
	require.NoError(t, err)
	require.Equal(t, "sha-2", res.SHA)
	require.Equal(t, "commit-2", res.CommitSHA)
	require.Equal(t, "Add entry", got["message"])
	require.Equal(t, "main", got["branch"])
	require.Equal(t, "sha-1", got["sha"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("[]\n")), got["content"])

	_, err = c.PutFile(context.Background(), upstream.PutRequest{Token: testToken, Message: "x", SHA: "stale"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestClient_UserAndPermissions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"login":"octocat","id":1}`))
	})
	mux.HandleFunc("GET /repos/Monofly/AMQ-Missing-Songs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"full_name":"Monofly/AMQ-Missing-Songs","permissions":{"admin":false,"push":true,"pull":true}}`))
	})
	c := newTestClient(t, mux)

	user, err := c.GetUser(context.Background(), testToken)
	require.NoError(t, err)
	require.Equal(t, "octocat", user.Login())

	_, err = c.GetUser(context.Background(), "bad")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	perms, err := c.GetRepoPermissions(context.Background(), testToken)
	require.NoError(t, err)
	require.True(t, perms.Push)
}

func TestClient_StartDeviceFlow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login/device/code", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, testClientID, r.PostForm.Get("client_id"))
		require.Equal(t, "public_repo", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"device_code":"dev-1","user_code":"ABCD-1234","verification_uri":"https://github.com/login/device","expires_in":900,"interval":5}`))
	}))

	dc, err := c.StartDeviceFlow(context.Background(), testClientID, "public_repo")
	require.NoError(t, err)
	require.Equal(t, "dev-1", dc.DeviceCode)
	require.Equal(t, "ABCD-1234", dc.UserCode)
	require.Equal(t, "https://github.com/login/device", dc.VerificationURI)
	require.EqualValues(t, 5, dc.Interval)
	require.Equal(t, int64(900), dc.ExpiresIn)
}

func TestClient_PollDeviceFlow(t *testing.T) {
	answers := map[string]string{
		"pending": `{"error":"authorization_pending","error_description":"still waiting"}`,
		"slow":    `{"error":"slow_down"}`,
		"expired": `{"error":"expired_token"}`,
		"empty":   `{"token_type":"bearer"}`,
		"ok":      `{"access_token":"gho_new","token_type":"bearer","scope":"public_repo"}`,
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login/oauth/access_token", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		require.Equal(t, "urn:ietf:params:oauth:grant-type:device_code", form.Get("grant_type"))
		require.Equal(t, testClientID, form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(answers[form.Get("device_code")]))
	}))

	for code, want := range map[string]string{
		"pending": upstream.CodeAuthorizationPending,
		"slow":    upstream.CodeSlowDown,
		"expired": upstream.CodeExpiredToken,
		"empty":   upstream.CodeNoAccessToken,
	} {
		_, err := c.PollDeviceFlow(context.Background(), testClientID, code)
		var dfe *upstream.DeviceFlowError
		require.ErrorAs(t, err, &dfe, code)
		require.Equal(t, want, dfe.Code)
	}

	tok, err := c.PollDeviceFlow(context.Background(), testClientID, "ok")
	require.NoError(t, err)
	require.Equal(t, "gho_new", tok.AccessToken)
	require.Equal(t, "public_repo", tok.Scope)
}
