package indexclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	goidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"vitalgraph.io/vgerrors"
)

// KeycloakConfig is the subset of configuration needed to obtain a
// bearer token via the resource-owner password-credentials grant.
type KeycloakConfig struct {
	URL          string // issuer base URL, e.g. https://keycloak.example.com
	Realm        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

func (k KeycloakConfig) tokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.URL, k.Realm)
}

// TokenCache stores the single cached bearer token shared by all
// instances of one IndexClient (and, via a Redis-backed implementation,
// shared across process instances that must not thrash the same
// Keycloak realm with redundant password-grant calls).
type TokenCache interface {
	Get(ctx context.Context) (*oauth2.Token, bool)
	Set(ctx context.Context, tok *oauth2.Token) error
}

// memTokenCache is the default in-process cache.
type memTokenCache struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

// NewMemTokenCache builds the default in-process TokenCache.
func NewMemTokenCache() TokenCache {
	return &memTokenCache{}
}

func (c *memTokenCache) Get(context.Context) (*oauth2.Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tok, c.tok != nil
}

func (c *memTokenCache) Set(_ context.Context, tok *oauth2.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok = tok
	return nil
}

// refreshSkew is how far before expiry a cached token is treated as
// stale and eagerly refreshed.
const refreshSkew = 60 * time.Second

// TokenManager fetches and caches bearer tokens for the index via the
// OIDC/Keycloak password grant, refreshing proactively within
// refreshSkew of expiry and on demand after a 401.
type TokenManager struct {
	cfg   KeycloakConfig
	cache TokenCache

	mu       sync.Mutex
	forced   bool
	oauthCfg oauth2.Config
}

// NewTokenManager builds a TokenManager. If cache is nil, an in-process
// cache is used.
func NewTokenManager(cfg KeycloakConfig, cache TokenCache) *TokenManager {
	if cache == nil {
		cache = NewMemTokenCache()
	}
	return &TokenManager{
		cfg:   cfg,
		cache: cache,
		oauthCfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.tokenURL(),
			},
		},
	}
}

// NewTokenManagerFromDiscovery builds a TokenManager resolving the token
// endpoint via OIDC discovery instead of the conventional Keycloak path,
// for index deployments fronted by a non-Keycloak OIDC provider.
func NewTokenManagerFromDiscovery(ctx context.Context, issuerURL string, cfg KeycloakConfig, cache TokenCache) (*TokenManager, error) {
	provider, err := goidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.Auth, "discovering OIDC provider", err)
	}
	var endpoint struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := provider.Claims(&endpoint); err != nil {
		return nil, vgerrors.Wrap(vgerrors.Auth, "reading OIDC discovery claims", err)
	}
	if cache == nil {
		cache = NewMemTokenCache()
	}
	return &TokenManager{
		cfg:   cfg,
		cache: cache,
		oauthCfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: endpoint.TokenEndpoint},
		},
	}, nil
}

// ForceRefresh marks the cached token stale so the next Token call
// re-obtains one, regardless of its recorded expiry. Called after any
// 401 from the index.
func (m *TokenManager) ForceRefresh() {
	m.mu.Lock()
	m.forced = true
	m.mu.Unlock()
}

// Token returns a valid "Bearer <access_token>" header value, refreshing
// via the password grant if the cached token is missing, within
// refreshSkew of expiry, or was force-invalidated.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	forced := m.forced
	m.mu.Unlock()

	tok, ok := m.cache.Get(ctx)
	if ok && !forced && tok.Expiry.After(time.Now().Add(refreshSkew)) {
		return "Bearer " + tok.AccessToken, nil
	}

	tok, err := m.oauthCfg.PasswordCredentialsToken(ctx, m.cfg.Username, m.cfg.Password)
	if err != nil {
		return "", vgerrors.Wrap(vgerrors.Auth, "password grant against keycloak token endpoint", err)
	}
	if err := m.cache.Set(ctx, tok); err != nil {
		return "", vgerrors.Wrap(vgerrors.Auth, "caching bearer token", err)
	}

	m.mu.Lock()
	m.forced = false
	m.mu.Unlock()

	return "Bearer " + tok.AccessToken, nil
}
