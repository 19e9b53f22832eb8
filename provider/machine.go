package provider

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// MachineTokenSource mints client-credentials access tokens for calling the
// platform's machine-to-machine APIs (user lookups, patches). Tokens are
// cached in-process and renewed automatically shortly before expiry.
//
// The source is process-local. Deployments that want shared caching across
// replicas can implement oauth2.TokenSource over an external store and pass
// it wherever a MachineTokenSource is accepted.
type MachineTokenSource struct {
	src oauth2.TokenSource
}

// NewMachineTokenSource creates a caching token source for the given
// machine-to-machine client. The optional httpClient is used for token
// requests; it defaults to a client with a 30-second timeout.
func NewMachineTokenSource(applicationDomain, clientID, clientSecret string, httpClient *http.Client) (*MachineTokenSource, error) {
	if applicationDomain == "" {
		return nil, fmt.Errorf("application domain is required")
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("machine client credentials are required")
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     "https://" + applicationDomain + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return &MachineTokenSource{
		src: oauth2.ReuseTokenSource(nil, conf.TokenSource(ctx)),
	}, nil
}

// Token returns a valid machine access token, minting a new one when the
// cached token has expired.
func (m *MachineTokenSource) Token() (string, error) {
	token, err := m.src.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain machine token: %w", err)
	}
	return token.AccessToken, nil
}
