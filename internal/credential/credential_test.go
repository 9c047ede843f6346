package credential_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/hail-is/auth-gateway/internal/credential"
)

func extract(t *testing.T, target string, headers map[string]string) (string, error) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return credential.NewExtractor(nil).FromRequest(req)
}

func TestFromRequest_NoCredential(t *testing.T) {
	t.Parallel()

	_, err := extract(t, "/verify", nil)
	if !errors.Is(err, credential.ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
}

func TestFromRequest_BearerHeader(t *testing.T) {
	t.Parallel()

	token, err := extract(t, "/verify", map[string]string{
		"Authorization": "Bearer abc123",
	})
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}
}

func TestFromRequest_CookieCarrier(t *testing.T) {
	t.Parallel()

	token, err := extract(t, "/verify", map[string]string{
		"Cookie": "access_token=abc123",
	})
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}
}

func TestFromRequest_QueryParameterRejected(t *testing.T) {
	t.Parallel()

	// a token in the query string is never accepted, even when another
	// carrier is also present
	_, err := extract(t, "/verify?access_token=abc123", map[string]string{
		"Authorization": "Bearer abc123",
	})
	if !errors.Is(err, credential.ErrQueryCredential) {
		t.Errorf("expected ErrQueryCredential, got %v", err)
	}
}

func TestFromRequest_BothCarriersAmbiguous(t *testing.T) {
	t.Parallel()

	_, err := extract(t, "/verify", map[string]string{
		"Authorization": "Bearer abc123",
		"Cookie":        "access_token=abc123",
	})
	if !errors.Is(err, credential.ErrAmbiguousCredential) {
		t.Errorf("expected ErrAmbiguousCredential, got %v", err)
	}
}

func TestFromRequest_CookieSeparators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cookie  string
		want    string
		wantErr error
	}{
		{
			name:   "token among other cookie pairs",
			cookie: "foo=bar; access_token=abc123, def=ghi",
			want:   "abc123",
		},
		{
			name:   "token is last pair",
			cookie: "foo=bar; access_token=abc123",
			want:   "abc123",
		},
		{
			name:   "semicolon separator",
			cookie: "access_token=abc123; foo=bar",
			want:   "abc123",
		},
		{
			name:    "space not preceded by separator",
			cookie:  "access_token=abc 123",
			wantErr: credential.ErrMalformedCredential,
		},
		{
			name:    "empty token value",
			cookie:  "access_token=",
			wantErr: credential.ErrNoCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := extract(t, "/verify", map[string]string{"Cookie": tt.cookie})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromRequest failed: %v", err)
			}
			if token != tt.want {
				t.Errorf("token = %q, want %q", token, tt.want)
			}
		})
	}
}

func TestFromRequest_CookieRoundTrip(t *testing.T) {
	t.Parallel()

	// composing a cookie header from a separator-free token and
	// extracting recovers the original token
	original := "eyJhbGciOiJSUzI1NiJ9.eyJzdWIiOiJ1c2VyIn0.c2ln"
	token, err := extract(t, "/verify", map[string]string{
		"Cookie": "access_token=" + original,
	})
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if token != original {
		t.Errorf("token = %q, want %q", token, original)
	}
}
