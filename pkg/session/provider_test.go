package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hail-is/auth-gateway/pkg/session"
)

func TestHTTPProvider_CheckSession(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session/check" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("couldn't decode request body: %v", err)
		}
		if body["clientId"] != "client-1" || body["audience"] != "https://api.example.com" {
			t.Errorf("unexpected request body: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"idToken":     "id.a.b",
			"accessToken": "acc.c.d",
			"expiresIn":   3600,
		})
	}))
	defer server.Close()

	provider := session.NewHTTPProvider(session.ProviderConfig{
		BaseURL:  server.URL,
		ClientID: "client-1",
		Audience: "https://api.example.com",
	})

	grant, err := provider.CheckSession(context.Background())
	if err != nil {
		t.Fatalf("CheckSession failed: %v", err)
	}
	if grant.IDToken != "id.a.b" || grant.AccessToken != "acc.c.d" {
		t.Errorf("unexpected grant: %+v", grant)
	}
	if grant.ExpiresIn != time.Hour {
		t.Errorf("expected one hour lifetime, got %v", grant.ExpiresIn)
	}
}

func TestHTTPProvider_CheckSessionRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := session.NewHTTPProvider(session.ProviderConfig{BaseURL: server.URL, ClientID: "client-1"})

	if _, err := provider.CheckSession(context.Background()); !errors.Is(err, session.ErrRenewalRequest) {
		t.Errorf("expected ErrRenewalRequest, got %v", err)
	}
}

func TestHTTPProvider_CheckSessionBadResponse(t *testing.T) {
	t.Parallel()

	responses := map[string]string{
		"not json":        `<html>`,
		"missing tokens":  `{"expiresIn": 3600}`,
		"zero expiry":     `{"idToken": "a", "accessToken": "b", "expiresIn": 0}`,
		"negative expiry": `{"idToken": "a", "accessToken": "b", "expiresIn": -1}`,
	}

	for name, body := range responses {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			provider := session.NewHTTPProvider(session.ProviderConfig{BaseURL: server.URL, ClientID: "client-1"})

			if _, err := provider.CheckSession(context.Background()); !errors.Is(err, session.ErrRenewalResponse) {
				t.Errorf("expected ErrRenewalResponse, got %v", err)
			}
		})
	}
}

func TestHTTPProvider_Logout(t *testing.T) {
	t.Parallel()

	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logout" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		got = r.URL.Query()
	}))
	defer server.Close()

	provider := session.NewHTTPProvider(session.ProviderConfig{
		BaseURL:     server.URL,
		ClientID:    "client-1",
		RedirectURI: "https://app.example.com/",
	})

	if err := provider.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if got.Get("client_id") != "client-1" || got.Get("returnTo") != "https://app.example.com/" {
		t.Errorf("unexpected logout query: %v", got)
	}
}

func TestHTTPProvider_AuthorizeURL(t *testing.T) {
	t.Parallel()

	provider := session.NewHTTPProvider(session.ProviderConfig{
		BaseURL:     "https://idp.example.com/",
		ClientID:    "client-1",
		Audience:    "https://api.example.com",
		RedirectURI: "https://app.example.com/callback",
	})

	raw := provider.AuthorizeURL("csrf-token")
	if !strings.HasPrefix(raw, "https://idp.example.com/authorize?") {
		t.Fatalf("unexpected authorize URL: %s", raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("couldn't parse authorize URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("client_id") != "client-1" || q.Get("state") != "csrf-token" {
		t.Errorf("unexpected query: %v", q)
	}
	if q.Get("response_type") != "token id_token" || q.Get("scope") != "openid" {
		t.Errorf("expected default response_type and scope, got %v", q)
	}
}
