package tokensource_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/florianilch/rconf/internal/remoteconfig"
	"github.com/florianilch/rconf/internal/tokensource"
)

// tokenServer answers OAuth token requests and hands the parsed form to the test.
func tokenServer(t *testing.T, accessToken string) (*httptest.Server, <-chan url.Values) {
	t.Helper()
	forms := make(chan url.Values, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		forms <- r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)
	return server, forms
}

func TestNewTokenSource_RefreshesWithGoogleClient(t *testing.T) {
	server, forms := tokenServer(t, "ya29.refreshed")

	ts := tokensource.NewTokenSource(
		"1//refresh",
		tokensource.ClientCredentials{ID: "client-id", Secret: "client-secret"},
		[]string{remoteconfig.Scope},
		tokensource.WithEndpoint(oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams}),
	)

	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "ya29.refreshed", token.AccessToken)

	form := <-forms
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "1//refresh", form.Get("refresh_token"))
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Equal(t, "client-secret", form.Get("client_secret"))
}

func TestDefaultCredentials_ServiceAccountKey(t *testing.T) {
	server, forms := tokenServer(t, "ya29.service-account")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	keyFile, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "demo-project",
		"private_key_id": "key-1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   "rconf@demo-project.iam.gserviceaccount.com",
		"token_uri":      server.URL,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "service-account.json")
	require.NoError(t, os.WriteFile(path, keyFile, 0600))

	p, err := tokensource.NewProvider(tokensource.DefaultCredentials(path))
	require.NoError(t, err)

	token, err := p.Token(context.Background(), []string{remoteconfig.Scope})
	require.NoError(t, err)
	assert.Equal(t, "ya29.service-account", token)

	form := <-forms
	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", form.Get("grant_type"))
	assert.NotEmpty(t, form.Get("assertion"))
}

func TestDefaultCredentials_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("not json"), 0600))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.json")},
		{name: "malformed file", path: garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tokensource.NewProvider(tokensource.DefaultCredentials(tt.path))
			require.NoError(t, err)

			_, err = p.Token(context.Background(), []string{remoteconfig.Scope})
			assert.Error(t, err)
		})
	}
}
