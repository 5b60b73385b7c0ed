// Package oauth implements the streaming provider OAuth client.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

// Default endpoints of the music streaming provider.
const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

// DefaultScopes covers playback control for music bingo.
var DefaultScopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"playlist-read-private",
}

// Config describes the registered client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// Provider implements application.OAuthProvider.
type Provider struct {
	config *oauth2.Config
	client *http.Client
}

// NewProvider returns a provider for cfg. client may be nil to use the
// default HTTP client.
func NewProvider(cfg Config, client *http.Client) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oauth client id, secret and redirect url are required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
	}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a grant.
func (p *Provider) Exchange(ctx context.Context, code string) (application.StreamingToken, error) {
	tok, err := p.config.Exchange(p.withClient(ctx), code)
	if err != nil {
		return application.StreamingToken{}, err
	}
	return fromOAuth(tok), nil
}

// Refresh obtains a fresh access token from the stored refresh token.
func (p *Provider) Refresh(ctx context.Context, token application.StreamingToken) (application.StreamingToken, error) {
	if token.RefreshToken == "" {
		return application.StreamingToken{}, fmt.Errorf("no refresh token")
	}
	// An expired access token forces the source to hit the token endpoint.
	src := p.config.TokenSource(p.withClient(ctx), &oauth2.Token{
		RefreshToken: token.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return application.StreamingToken{}, err
	}
	return fromOAuth(tok), nil
}

func (p *Provider) withClient(ctx context.Context) context.Context {
	if p.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func fromOAuth(tok *oauth2.Token) application.StreamingToken {
	return application.StreamingToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
}
