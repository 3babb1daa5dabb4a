// internal/common/auth/keycloak.go
package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"primary-organization/internal/common/errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// KeycloakConfig describes a confidential client of a Keycloak realm.
type KeycloakConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// KeycloakClient issues client-credentials tokens and caches them until expiry.
type KeycloakClient struct {
	cfg    clientcredentials.Config
	source oauth2.TokenSource
	base   *http.Client
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(ctx context.Context, cfg KeycloakConfig) *KeycloakClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	base := &http.Client{Timeout: timeout}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return &KeycloakClient{
		cfg:    cc,
		source: cc.TokenSource(ctx),
		base:   base,
	}
}

// Token returns a valid access token, fetching a new one when expired.
func (k *KeycloakClient) Token() (*oauth2.Token, error) {
	tok, err := k.source.Token()
	if err != nil {
		return nil, MapTokenError(err)
	}
	return tok, nil
}

// HTTPClient returns a client that authorizes every request with the token.
func (k *KeycloakClient) HTTPClient() *http.Client {
	return &http.Client{
		Timeout: k.base.Timeout,
		Transport: &oauth2.Transport{
			Source: k,
			Base:   k.base.Transport,
		},
	}
}

// MapTokenError classifies token endpoint failures. Rejected credentials
// are authentication errors, everything else is an external service error.
func MapTokenError(err error) error {
	if err == nil {
		return nil
	}
	var std *errors.StandardError
	if stderrors.As(err, &std) {
		return std
	}
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return errors.NewAuthenticationError(re.Error())
		}
	}
	return errors.NewExternalServiceError("keycloak", err)
}
