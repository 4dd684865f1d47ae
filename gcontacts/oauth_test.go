// ABOUTME: Tests for device-flow token handling and state persistence
// ABOUTME: Covers both flow phases against a fake provider and the absorb-all-failures load
package gcontacts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func useTempDataHome(t *testing.T) {
	t.Helper()
	orig := xdg.DataHome
	xdg.DataHome = t.TempDir()
	t.Cleanup(func() { xdg.DataHome = orig })
}

func TestStatePathXDG(t *testing.T) {
	path := StatePath()

	assert.Equal(t, filepath.Join(xdg.DataHome, "gigasync"), filepath.Dir(path))
	assert.Equal(t, "google-oauth.json", filepath.Base(path))
}

func TestLoadTokenStateMissingFile(t *testing.T) {
	useTempDataHome(t)

	state := LoadTokenState()
	assert.Equal(t, &TokenState{}, state)
}

func TestLoadTokenStateMalformedJSON(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, os.MkdirAll(StateDir(), 0700))
	require.NoError(t, os.WriteFile(StatePath(), []byte("{not json"), 0600))

	state := LoadTokenState()
	assert.Equal(t, &TokenState{}, state)
}

func TestLoadTokenStateMissingKeyResetsEverything(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, os.MkdirAll(StateDir(), 0700))

	// refresh_token is absent: the whole state must come back empty, not
	// a partially filled one.
	partial := map[string]any{
		"device_code":      "dc",
		"user_code":        "uc",
		"interval":         5,
		"access_token":     "at",
		"verification_url": "https://example.com/device",
	}
	data, err := json.Marshal(partial)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(StatePath(), data, 0600))

	state := LoadTokenState()
	assert.Equal(t, &TokenState{}, state)
}

func TestSaveAndLoadTokenState(t *testing.T) {
	useTempDataHome(t)

	saved := &TokenState{
		DeviceCode:      "dc",
		UserCode:        "uc",
		Interval:        5,
		AccessToken:     "at",
		RefreshToken:    "rt",
		VerificationURL: "https://example.com/device",
	}
	require.NoError(t, SaveTokenState(saved))

	assert.Equal(t, saved, LoadTokenState())
}

// fakeProvider emulates the OAuth device-authorization and token endpoints.
type fakeProvider struct {
	srv *httptest.Server

	deviceResponse map[string]any
	tokenResponse  map[string]any
	deviceCalls    int
	tokenForm      map[string]string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		p.deviceCalls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.deviceResponse)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.tokenForm = map[string]string{}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				p.tokenForm[k] = v[0]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.tokenResponse)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		DeviceAuthURL: p.srv.URL + "/device",
		TokenURL:      p.srv.URL + "/token",
	}
}

func newTestAuthorizer(p *fakeProvider) *Authorizer {
	a := NewAuthorizer(Credentials{ClientID: "id", ClientSecret: "secret"})
	a.conf.Endpoint = p.endpoint()
	return a
}

func TestTokenPhaseOneRequestsDeviceCode(t *testing.T) {
	useTempDataHome(t)

	p := newFakeProvider(t)
	p.deviceResponse = map[string]any{
		"device_code":      "dc",
		"user_code":        "ABCD-EFGH",
		"verification_uri": "https://example.com/device",
		"expires_in":       1800,
		"interval":         5,
	}

	a := newTestAuthorizer(p)
	_, err := a.Token(context.Background(), false)

	var pending *PendingAuthorizationError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, "https://example.com/device", pending.VerificationURL)
	assert.Equal(t, "ABCD-EFGH", pending.UserCode)

	state := LoadTokenState()
	assert.Equal(t, "dc", state.DeviceCode)
	assert.Equal(t, "ABCD-EFGH", state.UserCode)
	assert.Equal(t, int64(5), state.Interval)
	assert.Empty(t, state.AccessToken)
}

func TestTokenPhaseOneGoogleVerificationURLFallback(t *testing.T) {
	useTempDataHome(t)

	p := newFakeProvider(t)
	// Google sends verification_url, which the oauth2 package ignores.
	p.deviceResponse = map[string]any{
		"device_code":      "dc",
		"user_code":        "ABCD-EFGH",
		"verification_url": "https://www.google.com/device",
		"expires_in":       1800,
		"interval":         5,
	}

	a := newTestAuthorizer(p)
	_, err := a.Token(context.Background(), false)

	var pending *PendingAuthorizationError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, googleVerificationURL, pending.VerificationURL)
}

func TestTokenPhaseTwoPendingPersistsNothing(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, SaveTokenState(&TokenState{
		DeviceCode:      "dc",
		UserCode:        "uc",
		Interval:        5,
		VerificationURL: "https://example.com/device",
	}))

	p := newFakeProvider(t)
	p.tokenResponse = map[string]any{"error": "authorization_pending"}

	a := newTestAuthorizer(p)
	_, err := a.Token(context.Background(), false)

	var pending *PendingAuthorizationError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, "https://example.com/device", pending.VerificationURL)
	assert.Equal(t, "uc", pending.UserCode)

	assert.Equal(t, "dc", p.tokenForm["device_code"])
	assert.Equal(t, deviceGrantType, p.tokenForm["grant_type"])

	state := LoadTokenState()
	assert.Empty(t, state.AccessToken, "pending answers persist nothing new")
}

func TestTokenPhaseTwoSuccessPersistsTokens(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, SaveTokenState(&TokenState{
		DeviceCode:      "dc",
		UserCode:        "uc",
		Interval:        5,
		VerificationURL: "https://example.com/device",
	}))

	p := newFakeProvider(t)
	p.tokenResponse = map[string]any{
		"access_token":  "at",
		"refresh_token": "rt",
		"token_type":    "Bearer",
	}

	a := newTestAuthorizer(p)
	token, err := a.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)

	state := LoadTokenState()
	assert.Equal(t, "at", state.AccessToken)
	assert.Equal(t, "rt", state.RefreshToken)
	assert.Equal(t, "dc", state.DeviceCode, "flow fields survive the save")
}

func TestTokenPhaseTwoProviderError(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, SaveTokenState(&TokenState{
		DeviceCode: "dc", UserCode: "uc", Interval: 5,
		VerificationURL: "https://example.com/device",
	}))

	p := newFakeProvider(t)
	p.tokenResponse = map[string]any{"error": "access_denied"}

	a := newTestAuthorizer(p)
	_, err := a.Token(context.Background(), false)
	require.Error(t, err)

	var pending *PendingAuthorizationError
	assert.False(t, errors.As(err, &pending), "a real denial is not a pending state")
}

func TestTokenExistingAccessTokenSkipsProvider(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, SaveTokenState(&TokenState{
		DeviceCode: "dc", UserCode: "uc", Interval: 5,
		AccessToken: "at", RefreshToken: "rt",
		VerificationURL: "https://example.com/device",
	}))

	p := newFakeProvider(t)
	a := newTestAuthorizer(p)

	token, err := a.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, 0, p.deviceCalls, "no provider round trip for a stored token")
}

func TestTokenForceRestartsFlow(t *testing.T) {
	useTempDataHome(t)
	require.NoError(t, SaveTokenState(&TokenState{
		DeviceCode: "dc", UserCode: "uc", Interval: 5,
		AccessToken: "at", RefreshToken: "rt",
		VerificationURL: "https://example.com/device",
	}))

	p := newFakeProvider(t)
	p.deviceResponse = map[string]any{
		"device_code":      "dc2",
		"user_code":        "NEW-CODE",
		"verification_uri": "https://example.com/device",
		"interval":         5,
	}

	a := newTestAuthorizer(p)
	_, err := a.Token(context.Background(), true)

	var pending *PendingAuthorizationError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, 1, p.deviceCalls)
	assert.Equal(t, "NEW-CODE", LoadTokenState().UserCode)
}
