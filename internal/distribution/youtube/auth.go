package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// UploadScope is the only scope the relay needs.
const UploadScope = "https://www.googleapis.com/auth/youtube.upload"

// Credentials are loaded once at process start and never modified.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

type Auth struct {
	config       *oauth2.Config
	refreshToken string
}

func NewAuth(creds Credentials) *Auth {
	return &Auth{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{UploadScope},
		},
		refreshToken: creds.RefreshToken,
	}
}

// WithEndpoint points the token exchange somewhere other than Google.
func (a *Auth) WithEndpoint(endpoint oauth2.Endpoint) *Auth {
	a.config.Endpoint = endpoint
	return a
}

// Token exchanges the refresh credential for a short-lived access token.
func (a *Auth) Token(ctx context.Context, base *http.Client) (*oauth2.Token, error) {
	if a.config.ClientID == "" || a.config.ClientSecret == "" {
		return nil, &AuthError{Reason: ReasonMissingCredential, Err: errors.New("client id and client secret are required")}
	}
	if a.refreshToken == "" {
		return nil, &AuthError{Reason: ReasonMissingCredential, Err: errors.New("refresh token is required")}
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	token, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: a.refreshToken}).Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return token, nil
}

// Client returns an HTTP client that authorizes every request with a token
// obtained up front, so credential problems surface before any session opens.
func (a *Auth) Client(ctx context.Context, base *http.Client) (*http.Client, error) {
	token, err := a.Token(ctx, base)
	if err != nil {
		return nil, err
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return a.config.Client(ctx, token), nil
}

// ConsentURL starts the installed-app flow used to mint a refresh token.
func (a *Auth) ConsentURL(redirectURL, state string) string {
	cfg := *a.config
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *Auth) Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	cfg := *a.config
	cfg.RedirectURL = redirectURL

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.New("no refresh token returned, revoke the app's access and retry")
	}
	return token, nil
}
