package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrRenewalRequest  = errors.New("session: renewal request failed")
	ErrRenewalResponse = errors.New("session: invalid renewal response")
)

// Grant is what the identity provider hands back on a successful
// authentication or silent renewal. Profile may be nil, in which case it is
// decoded from the identity token.
type Grant struct {
	IDToken     string
	AccessToken string
	ExpiresIn   time.Duration
	Profile     *UserProfile
}

// Provider is the identity provider as seen by the session automaton:
// opaque beyond producing grants and accepting a logout.
type Provider interface {
	// CheckSession performs a silent renewal against the provider's
	// existing session, with no user interaction.
	CheckSession(ctx context.Context) (*Grant, error)

	// Logout ends the provider-side session.
	Logout(ctx context.Context) error

	// AuthorizeURL builds the interactive login URL the user should be
	// sent to; state is echoed back on the callback.
	AuthorizeURL(state string) string
}

// ProviderConfig identifies this client to the identity provider.
type ProviderConfig struct {
	BaseURL      string
	ClientID     string
	Audience     string
	RedirectURI  string
	ResponseType string // defaults to "token id_token"
	Scope        string // defaults to "openid"
	HTTPClient   *http.Client
}

// HTTPProvider talks to an identity provider over HTTP.
type HTTPProvider struct {
	cfg    ProviderConfig
	client *http.Client
}

func NewHTTPProvider(cfg ProviderConfig) *HTTPProvider {
	if cfg.ResponseType == "" {
		cfg.ResponseType = "token id_token"
	}
	if cfg.Scope == "" {
		cfg.Scope = "openid"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{cfg: cfg, client: client}
}

type renewResponse struct {
	IDToken     string `json:"idToken"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

func (p *HTTPProvider) CheckSession(ctx context.Context) (*Grant, error) {
	body := fmt.Sprintf(
		`{ "clientId": %q, "audience": %q, "scope": %q }`,
		p.cfg.ClientID, p.cfg.Audience, p.cfg.Scope,
	)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.endpoint("/session/check"),
		strings.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenewalRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenewalRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRenewalRequest, resp.StatusCode)
	}

	renewed := new(renewResponse)
	if err := json.NewDecoder(resp.Body).Decode(renewed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenewalResponse, err)
	}
	if renewed.IDToken == "" || renewed.AccessToken == "" || renewed.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: missing fields", ErrRenewalResponse)
	}

	return &Grant{
		IDToken:     renewed.IDToken,
		AccessToken: renewed.AccessToken,
		ExpiresIn:   time.Duration(renewed.ExpiresIn) * time.Second,
	}, nil
}

func (p *HTTPProvider) Logout(ctx context.Context) error {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("returnTo", p.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		p.endpoint("/logout")+"?"+q.Encode(),
		nil,
	)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (p *HTTPProvider) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	q.Set("audience", p.cfg.Audience)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("response_type", p.cfg.ResponseType)
	q.Set("scope", p.cfg.Scope)
	if state != "" {
		q.Set("state", state)
	}
	return p.endpoint("/authorize") + "?" + q.Encode()
}

func (p *HTTPProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}
