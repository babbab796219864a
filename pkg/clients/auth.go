// Package clients provides the shared HTTP connector client used by every
// source adapter: auth injection, rate limiting, pagination, and the
// rate-limit retry loop.
package clients

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/discordwell/ticketbridge/pkg/errors"
)

// AuthProvider injects authentication into an outbound request.
type AuthProvider interface {
	Apply(ctx context.Context, req *http.Request) error
}

// sessionResetter is implemented by providers whose cached credentials can be
// invalidated, allowing the client to refresh transparently on 401.
type sessionResetter interface {
	ResetSession()
}

// StaticTokenAuth sends a fixed bearer token on every request.
type StaticTokenAuth struct {
	Token string
	// Header overrides the default Authorization header name
	Header string
	// Prefix overrides the default "Bearer " value prefix
	Prefix string
}

// Apply sets the token header.
func (a *StaticTokenAuth) Apply(_ context.Context, req *http.Request) error {
	if a.Token == "" {
		return errors.New(errors.ErrorTypeAuthentication, "no access token configured")
	}
	header := a.Header
	if header == "" {
		header = "Authorization"
	}
	prefix := a.Prefix
	if prefix == "" && header == "Authorization" {
		prefix = "Bearer "
	}
	req.Header.Set(header, prefix+a.Token)
	return nil
}

// BasicAuth sends HTTP basic credentials on every request.
type BasicAuth struct {
	Username string
	Password string
}

// Apply sets the basic auth header.
func (a *BasicAuth) Apply(_ context.Context, req *http.Request) error {
	if a.Username == "" {
		return errors.New(errors.ErrorTypeAuthentication, "no basic auth username configured")
	}
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// OAuthProvider obtains and caches a bearer token via the client-credentials
// grant. The {accessToken, expiresAt} cache is scoped to the provider
// instance, so multiple credential sets can coexist side by side. The client
// calls ResetSession on a 401 to force a refresh on the next request.
type OAuthProvider struct {
	config clientcredentials.Config
	logger *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// OAuthConfig configures an OAuthProvider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewOAuthProvider creates an OAuth client-credentials provider.
func NewOAuthProvider(cfg OAuthConfig, logger *zap.Logger) *OAuthProvider {
	return &OAuthProvider{
		config: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		},
		logger: logger.With(zap.String("component", "oauth_provider")),
	}
}

// Apply attaches a valid bearer token, fetching a new one when the cached
// token is missing or expired.
func (p *OAuthProvider) Apply(ctx context.Context, req *http.Request) error {
	token, err := p.currentToken(ctx)
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)
	return nil
}

func (p *OAuthProvider) currentToken(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token.Valid() {
		return p.token, nil
	}

	token, err := p.config.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to obtain access token")
	}

	p.logger.Debug("access token obtained", zap.Time("expires_at", token.Expiry))
	p.token = token
	return token, nil
}

// ResetSession discards the cached token so the next request fetches a
// fresh one.
func (p *OAuthProvider) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
}

// SessionExpiry returns the cached token's expiry, or the zero time when no
// token is cached.
func (p *OAuthProvider) SessionExpiry() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return time.Time{}
	}
	return p.token.Expiry
}
