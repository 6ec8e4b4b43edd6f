package nix_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/nix"
	"go.trai.ch/kiln/internal/core/domain"
)

func nixHubServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Query().Get("name") {
		case "python":
			assert.Equal(t, "3.11", r.URL.Query().Get("version"))
			_ = json.NewEncoder(w).Encode(nix.NixHubResponse{
				Name:    "python",
				Version: "3.11.9",
				Systems: map[string]nix.SystemResponse{
					"x86_64-linux": {FlakeInstallable: nix.FlakeInstallable{
						Ref:      nix.FlakeRef{Rev: "abc123"},
						AttrPath: "python311",
					}},
					"riscv64-linux": {FlakeInstallable: nix.FlakeInstallable{
						Ref: nix.FlakeRef{Rev: "ignored"},
					}},
				},
			})
		case "empty":
			_ = json.NewEncoder(w).Encode(nix.NixHubResponse{})
		case "broken":
			_, _ = w.Write([]byte("{"))
		case "flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolver_Resolve(t *testing.T) {
	var hits atomic.Int32
	srv := nixHubServer(t, &hits)
	cacheDir := t.TempDir()

	r := nix.NewResolver(cacheDir, nix.WithBaseURL(srv.URL), nix.WithSystem("x86_64-linux"), nix.WithHTTPClient(srv.Client()))

	commit, attr, err := r.Resolve(context.Background(), "python", "3.11")
	require.NoError(t, err)
	assert.Equal(t, "abc123", commit)
	assert.Equal(t, "python311", attr)
	assert.Equal(t, int32(1), hits.Load())

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	commit, _, err = r.Resolve(context.Background(), "python", "3.11")
	require.NoError(t, err)
	assert.Equal(t, "abc123", commit)
	assert.Equal(t, int32(1), hits.Load(), "second resolution must be served from cache")
}

func TestResolver_Resolve_UnsupportedSystem(t *testing.T) {
	var hits atomic.Int32
	srv := nixHubServer(t, &hits)

	r := nix.NewResolver(t.TempDir(), nix.WithBaseURL(srv.URL), nix.WithSystem("aarch64-darwin"))
	_, _, err := r.Resolve(context.Background(), "python", "3.11")
	require.ErrorIs(t, err, domain.ErrNixPackageNotFound)
}

func TestResolver_Resolve_Errors(t *testing.T) {
	var hits atomic.Int32
	srv := nixHubServer(t, &hits)

	tests := []struct {
		name    string
		pkg     string
		wantErr error
		wantMsg string
	}{
		{name: "not found", pkg: "missing", wantErr: domain.ErrNixPackageNotFound},
		{name: "no systems", pkg: "empty", wantErr: domain.ErrNixPackageNotFound},
		{name: "bad status", pkg: "flaky", wantErr: domain.ErrNixAPIRequestFailed},
		{name: "bad body", pkg: "broken", wantMsg: domain.ErrNixAPIParseFailed.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := nix.NewResolver(t.TempDir(), nix.WithBaseURL(srv.URL), nix.WithSystem("x86_64-linux"))
			_, _, err := r.Resolve(context.Background(), tt.pkg, "1.0")
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}
