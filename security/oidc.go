package security

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCProvider verifies bearer tokens against a discovered OIDC issuer,
// the inbound-auth counterpart to indexclient's outbound TokenManager.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
}

// OIDCConfig is the discovery input for an OIDCProvider.
type OIDCConfig struct {
	ProviderURL string
	ClientID    string
}

// Claims is the subset of standard OIDC ID token claims restshell needs
// to attribute a request to a caller.
type Claims struct {
	Subject       string                 `json:"sub"`
	Email         string                 `json:"email,omitempty"`
	EmailVerified bool                   `json:"email_verified,omitempty"`
	Extra         map[string]interface{} `json:"-"`
}

// NewOIDCProvider discovers config.ProviderURL's issuer metadata and
// builds a verifier scoped to config.ClientID.
func NewOIDCProvider(ctx context.Context, config OIDCConfig) (*OIDCProvider, error) {
	if config.ProviderURL == "" {
		return nil, fmt.Errorf("provider URL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	provider, err := oidc.NewProvider(ctx, config.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider: %w", err)
	}
	return &OIDCProvider{verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID})}, nil
}

// VerifyIDToken validates token's signature, issuer, audience, and
// expiry, returning its claims.
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, token string) (*Claims, error) {
	idToken, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verifying ID token: %w", err)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parsing token claims: %w", err)
	}
	var extra map[string]interface{}
	if err := idToken.Claims(&extra); err == nil {
		claims.Extra = extra
	}
	return &claims, nil
}
