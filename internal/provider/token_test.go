package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crmkit/email-gateway/internal/config"
	"github.com/crmkit/email-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExchangerRefresh(t *testing.T) {
	var gotGrant, gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotGrant = r.Form.Get("grant_type")
		gotRefresh = r.Form.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	ex := NewTokenExchanger(config.OAuthConfig{
		Google: config.OAuthClient{ClientID: "cid", ClientSecret: "csecret", TokenURL: srv.URL},
	})

	refresh := "refresh-1"
	mb := model.Mailbox{ID: "mbx-1", Provider: model.ProviderGmail, RefreshToken: &refresh}

	tok, err := ex.Refresh(context.Background(), mb)
	require.NoError(t, err)

	assert.Equal(t, "fresh-token", tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, 30*time.Second)
	assert.Equal(t, "refresh_token", gotGrant)
	assert.Equal(t, "refresh-1", gotRefresh)
}

func TestTokenExchangerEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	ex := NewTokenExchanger(config.OAuthConfig{
		Microsoft: config.OAuthClient{ClientID: "cid", TokenURL: srv.URL},
	})

	refresh := "revoked"
	mb := model.Mailbox{ID: "mbx-1", Provider: model.ProviderOutlook, RefreshToken: &refresh}

	_, err := ex.Refresh(context.Background(), mb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestTokenExchangerNoRefreshToken(t *testing.T) {
	ex := NewTokenExchanger(config.OAuthConfig{})

	_, err := ex.Refresh(context.Background(), model.Mailbox{Provider: model.ProviderGmail})
	require.ErrorIs(t, err, ErrNoRefreshToken)

	empty := ""
	_, err = ex.Refresh(context.Background(), model.Mailbox{Provider: model.ProviderGmail, RefreshToken: &empty})
	require.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestTokenExchangerUnsupportedProvider(t *testing.T) {
	ex := NewTokenExchanger(config.OAuthConfig{})
	refresh := "refresh-1"

	_, err := ex.Refresh(context.Background(), model.Mailbox{Provider: model.ProviderSMTP, RefreshToken: &refresh})
	require.ErrorIs(t, err, ErrUnsupported)
}
