package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

func TestNewMachineTokenSourceValidation(t *testing.T) {
	tests := []struct {
		name         string
		domain       string
		clientID     string
		clientSecret string
	}{
		{name: "missing domain", clientID: "m2m", clientSecret: "s"},
		{name: "missing client ID", domain: "auth.example.com", clientSecret: "s"},
		{name: "missing client secret", domain: "auth.example.com", clientID: "m2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMachineTokenSource(tt.domain, tt.clientID, tt.clientSecret, nil)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := NewMachineTokenSource("auth.example.com", "m2m", "s", nil); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}

func TestMachineTokenSourceCachesTokens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.PostFormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"machine-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	conf := &clientcredentials.Config{
		ClientID:     "m2m",
		ClientSecret: "s",
		TokenURL:     srv.URL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	src := &MachineTokenSource{
		src: oauth2.ReuseTokenSource(nil, conf.TokenSource(context.Background())),
	}

	for i := 0; i < 3; i++ {
		token, err := src.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if token != "machine-1" {
			t.Fatalf("token = %q", token)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("token endpoint calls = %d, want 1 (cached)", calls.Load())
	}
}
