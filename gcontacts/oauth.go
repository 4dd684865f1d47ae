// ABOUTME: OAuth device-authorization flow for Google contacts access
// ABOUTME: Persists flow state as JSON under the XDG data directory between invocations
package gcontacts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	contactsScope    = "https://www.googleapis.com/auth/contacts.readonly"
	defaultUserAgent = "gigasync"
	deviceGrantType  = "urn:ietf:params:oauth:grant-type:device_code"

	// Google answers the device request with verification_url, a field
	// that predates RFC 8628 and is not picked up by the oauth2 package.
	googleVerificationURL = "https://www.google.com/device"
)

// Credentials is the OAuth client configuration handed down from main.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TokenState is the on-disk snapshot of the device flow. It is overwritten
// wholesale after each phase and read back on the next invocation.
type TokenState struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	Interval        int64  `json:"interval"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	VerificationURL string `json:"verification_url"`
}

var stateKeys = []string{
	"device_code", "user_code", "interval",
	"access_token", "refresh_token", "verification_url",
}

// StateDir returns the XDG data directory holding the flow state.
func StateDir() string {
	return filepath.Join(xdg.DataHome, "gigasync")
}

// StatePath returns the path of the persisted flow state.
func StatePath() string {
	return filepath.Join(StateDir(), "google-oauth.json")
}

// LoadTokenState reads the persisted flow state. Any problem — a missing
// file, bad JSON, an absent key — yields the empty state so the flow
// simply starts over.
func LoadTokenState() *TokenState {
	empty := &TokenState{}

	data, err := os.ReadFile(StatePath())
	if err != nil {
		return empty
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return empty
	}
	for _, key := range stateKeys {
		if _, ok := raw[key]; !ok {
			return empty
		}
	}

	state := &TokenState{}
	if err := json.Unmarshal(data, state); err != nil {
		return empty
	}
	return state
}

// SaveTokenState overwrites the persisted flow state.
func SaveTokenState(state *TokenState) error {
	if err := os.MkdirAll(StateDir(), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.OpenFile(StatePath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(state); err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return nil
}

// PendingAuthorizationError means the user has not finished the browser
// side of the device flow yet. The command prints the verification
// instructions and exits cleanly; the next invocation resumes the flow.
type PendingAuthorizationError struct {
	VerificationURL string
	UserCode        string
}

func (e *PendingAuthorizationError) Error() string {
	return "waiting for user authorization"
}

// Authorizer walks the two-phase device flow against Google, one phase per
// process invocation.
type Authorizer struct {
	conf      *oauth2.Config
	userAgent string
}

// NewAuthorizer builds an authorizer for the contacts scope.
func NewAuthorizer(creds Credentials) *Authorizer {
	return &Authorizer{
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Scopes:       []string{contactsScope},
			Endpoint:     google.Endpoint,
		},
		userAgent: defaultUserAgent,
	}
}

// Token returns a usable bearer token, advancing the device flow by one
// phase per call. force discards any persisted state first.
func (a *Authorizer) Token(ctx context.Context, force bool) (*oauth2.Token, error) {
	state := &TokenState{}
	if !force {
		state = LoadTokenState()
	}

	if state.AccessToken != "" {
		return &oauth2.Token{
			AccessToken:  state.AccessToken,
			RefreshToken: state.RefreshToken,
			TokenType:    "Bearer",
		}, nil
	}

	if state.UserCode == "" {
		return nil, a.requestDeviceCode(ctx, state)
	}
	return a.exchangeDeviceCode(ctx, state)
}

// requestDeviceCode runs phase one: obtain a device/user code pair and
// persist it, then tell the caller to send the user off to the browser.
func (a *Authorizer) requestDeviceCode(ctx context.Context, state *TokenState) error {
	resp, err := a.conf.DeviceAuth(a.httpContext(ctx))
	if err != nil {
		return fmt.Errorf("device authorization request failed: %w", err)
	}

	state.DeviceCode = resp.DeviceCode
	state.UserCode = resp.UserCode
	state.Interval = resp.Interval
	state.VerificationURL = resp.VerificationURI
	if state.VerificationURL == "" {
		state.VerificationURL = googleVerificationURL
	}

	if err := SaveTokenState(state); err != nil {
		return err
	}
	return &PendingAuthorizationError{VerificationURL: state.VerificationURL, UserCode: state.UserCode}
}

// exchangeDeviceCode runs phase two: a single token-endpoint attempt. An
// authorization_pending answer persists nothing and surfaces the pending
// error again; the tool is expected to be re-invoked rather than poll.
func (a *Authorizer) exchangeDeviceCode(ctx context.Context, state *TokenState) (*oauth2.Token, error) {
	form := url.Values{
		"client_id":     {a.conf.ClientID},
		"client_secret": {a.conf.ClientSecret},
		"device_code":   {state.DeviceCode},
		"grant_type":    {deviceGrantType},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.conf.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Error        string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	switch {
	case tr.Error == "authorization_pending":
		return nil, &PendingAuthorizationError{VerificationURL: state.VerificationURL, UserCode: state.UserCode}
	case tr.Error != "":
		return nil, fmt.Errorf("token exchange failed: %s", tr.Error)
	}

	state.AccessToken = tr.AccessToken
	state.RefreshToken = tr.RefreshToken
	if err := SaveTokenState(state); err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}

// httpContext makes the oauth2 package route its requests through our
// client so the session user agent is applied.
func (a *Authorizer) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient())
}

func (a *Authorizer) httpClient() *http.Client {
	return &http.Client{Transport: &userAgentTransport{agent: a.userAgent, base: http.DefaultTransport}}
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}
