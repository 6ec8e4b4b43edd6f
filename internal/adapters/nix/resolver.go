// Package nix resolves base toolchains through NixHub and materializes them with the nix CLI.
package nix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// DefaultNixHubURL is the NixHub endpoint resolving package versions to nixpkgs commits.
	DefaultNixHubURL  = "https://search.devbox.sh/v2/resolve"
	httpClientTimeout = 30 * time.Second
)

var _ ports.DependencyResolver = (*Resolver)(nil)

var supportedSystems = map[string]struct{}{
	"x86_64-linux":   {},
	"aarch64-linux":  {},
	"x86_64-darwin":  {},
	"aarch64-darwin": {},
}

// Resolver implements ports.DependencyResolver using the NixHub API with a local cache.
type Resolver struct {
	cacheDir   string
	baseURL    string
	system     string
	httpClient *http.Client
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient replaces the HTTP client used for NixHub requests.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) { r.httpClient = client }
}

// WithBaseURL points the resolver at another NixHub compatible endpoint.
func WithBaseURL(baseURL string) ResolverOption {
	return func(r *Resolver) { r.baseURL = baseURL }
}

// WithSystem overrides the nix system the resolver selects packages for.
func WithSystem(system string) ResolverOption {
	return func(r *Resolver) { r.system = system }
}

// NewResolver creates a Resolver caching results under cacheDir. The directory is created on first write.
func NewResolver(cacheDir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cacheDir:   filepath.Clean(cacheDir),
		baseURL:    DefaultNixHubURL,
		system:     currentSystem(),
		httpClient: &http.Client{Timeout: httpClientTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a package name and version to a nixpkgs commit hash and attribute path.
// Cached results are used before querying NixHub.
func (r *Resolver) Resolve(ctx context.Context, name, version string) (commitHash, attrPath string, err error) {
	cachePath := r.cachePath(name, version)
	if commitHash, attrPath, err = r.loadFromCache(cachePath); err == nil {
		return commitHash, attrPath, nil
	}

	resp, err := r.queryNixHub(ctx, name, version)
	if err != nil {
		return "", "", err
	}

	systemData, ok := resp.Systems[r.system]
	if !ok {
		return "", "", domain.Tagged(domain.ErrNixPackageNotFound, "package", name, "version", version, "system", r.system)
	}

	// A failed cache write only costs a request on the next build.
	_ = r.saveToCache(cachePath, name, version, resp)

	return systemData.FlakeInstallable.Ref.Rev, systemData.FlakeInstallable.AttrPath, nil
}

func (r *Resolver) cachePath(name, version string) string {
	hash := sha256.Sum256([]byte(name + "@" + version))
	return filepath.Join(r.cacheDir, hex.EncodeToString(hash[:])+".json")
}

func (r *Resolver) loadFromCache(path string) (commitHash, attrPath string, err error) {
	//nolint:gosec // Path is constructed from trusted directory and hashed filename
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", domain.ErrCacheMiss
		}
		return "", "", zerr.Wrap(err, domain.ErrNixCacheReadFailed.Error())
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", "", zerr.Wrap(err, domain.ErrNixCacheReadFailed.Error())
	}

	systemCache, ok := entry.Systems[r.system]
	if !ok {
		return "", "", domain.ErrCacheMiss
	}

	return systemCache.FlakeInstallable.Ref.Rev, systemCache.FlakeInstallable.AttrPath, nil
}

func (r *Resolver) saveToCache(path, name, version string, resp *NixHubResponse) error {
	systems := make(map[string]SystemCache)
	for sysName, sysData := range resp.Systems {
		if _, supported := supportedSystems[sysName]; !supported {
			continue
		}
		systems[sysName] = SystemCache{
			FlakeInstallable: sysData.FlakeInstallable,
			Outputs:          sysData.Outputs,
		}
	}

	data, err := json.MarshalIndent(cacheEntry{
		Name:      name,
		Version:   version,
		Systems:   systems,
		Timestamp: time.Now(),
	}, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrNixCacheWriteFailed.Error())
	}

	if err := atomicWriteFile(path, data); err != nil {
		return zerr.Wrap(err, domain.ErrNixCacheWriteFailed.Error())
	}
	return nil
}

func (r *Resolver) queryNixHub(ctx context.Context, name, version string) (*NixHubResponse, error) {
	endpoint, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrNixAPIRequestFailed.Error())
	}
	query := endpoint.Query()
	query.Set("name", name)
	query.Set("version", version)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrNixAPIRequestFailed.Error())
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrNixAPIRequestFailed.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.Tagged(domain.ErrNixPackageNotFound, "package", name, "version", version)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Tagged(domain.ErrNixAPIRequestFailed, "status_code", resp.StatusCode, "package", name, "version", version)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrNixAPIRequestFailed.Error())
	}

	var apiResp NixHubResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, zerr.Wrap(err, domain.ErrNixAPIParseFailed.Error())
	}
	if len(apiResp.Systems) == 0 {
		return nil, domain.Tagged(domain.ErrNixPackageNotFound, "package", name, "version", version)
	}

	return &apiResp, nil
}

// atomicWriteFile writes data to a temp file next to path and renames it into place.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".cache-*.json")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// currentSystem returns the running platform in nix system notation.
func currentSystem() string {
	switch runtime.GOOS + "/" + runtime.GOARCH {
	case "darwin/amd64":
		return "x86_64-darwin"
	case "darwin/arm64":
		return "aarch64-darwin"
	case "linux/arm64":
		return "aarch64-linux"
	default:
		return "x86_64-linux"
	}
}
