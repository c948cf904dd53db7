package provider

import (
	"context"
	"errors"
	"time"

	"github.com/crmkit/email-gateway/internal/config"
	"github.com/crmkit/email-gateway/internal/metrics"
	"github.com/crmkit/email-gateway/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

var ErrNoRefreshToken = errors.New("mailbox has no refresh token")

// TokenExchanger trades a mailbox's refresh token for a fresh access token.
// It holds one oauth2.Config per OAuth provider; the token URL can be
// overridden in config, which tests use to point at a local server.
type TokenExchanger struct {
	google    oauth2.Config
	microsoft oauth2.Config
	timeout   time.Duration
}

func NewTokenExchanger(cfg config.OAuthConfig) *TokenExchanger {
	g := oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://mail.google.com/"},
	}
	if cfg.Google.TokenURL != "" {
		g.Endpoint = oauth2.Endpoint{TokenURL: cfg.Google.TokenURL}
	}

	m := oauth2.Config{
		ClientID:     cfg.Microsoft.ClientID,
		ClientSecret: cfg.Microsoft.ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint("common"),
		Scopes:       []string{"https://graph.microsoft.com/Mail.Send", "offline_access"},
	}
	if cfg.Microsoft.TokenURL != "" {
		m.Endpoint = oauth2.Endpoint{TokenURL: cfg.Microsoft.TokenURL}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &TokenExchanger{google: g, microsoft: m, timeout: timeout}
}

// Refresh exchanges the mailbox's refresh token. The returned token carries
// the new access token and its expiry; the caller persists both as a pair.
func (t *TokenExchanger) Refresh(ctx context.Context, mb model.Mailbox) (*oauth2.Token, error) {
	if mb.RefreshToken == nil || *mb.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	var cfg *oauth2.Config
	switch mb.Provider {
	case model.ProviderGmail:
		cfg = &t.google
	case model.ProviderOutlook:
		cfg = &t.microsoft
	default:
		return nil, ErrUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: *mb.RefreshToken}).Token()
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	return tok, nil
}
