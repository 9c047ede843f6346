package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// UserProfile is decoded from the identity token's payload for optimistic
// display. The client does not verify the token it decodes; any privileged
// operation must re-verify server-side through the verification gateway.
type UserProfile struct {
	Subject    string `json:"sub"`
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	Name       string `json:"name"`
	Nickname   string `json:"nickname"`
	Picture    string `json:"picture"`
}

// State is the composed session view published to subscribers. Every
// transition replaces the whole value, so subscribers can detect change by
// pointer identity and never observe in-place mutation.
type State struct {
	User            *UserProfile
	IDToken         string
	AccessToken     string
	ExpiresAtMillis string
	LoggedOut       bool
}

// Authenticated reports whether the state carries a user.
func (s *State) Authenticated() bool {
	return s != nil && s.User != nil
}

type profileClaims struct {
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	Name       string `json:"name"`
	Nickname   string `json:"nickname"`
	Picture    string `json:"picture"`

	jwt.RegisteredClaims
}

// DecodeProfile extracts the user profile from an identity token without
// verifying its signature.
func DecodeProfile(idToken string) (*UserProfile, error) {
	claims := &profileClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("session: couldn't decode identity token: %v", err)
	}
	return &UserProfile{
		Subject:    claims.Subject,
		FamilyName: claims.FamilyName,
		GivenName:  claims.GivenName,
		Name:       claims.Name,
		Nickname:   claims.Nickname,
		Picture:    claims.Picture,
	}, nil
}
