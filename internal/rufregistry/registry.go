// Package rufregistry serves read-only queries against the crate metadata
// service. VersionsWithRufs asks a RUF metadata backend for every published
// version of a crate and its declared RUFs. DependencyRequirements is
// consulted in two tiers -- a local on-disk BoltDB cache first, then the
// sparse registry over HTTP.
package rufregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver"
	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/depmanager"
)

var (
	versionsBucket = []byte("versions_with_rufs")
	reqsBucket     = []byte("dependency_requirements")
)

// RufMetadataClient is the local database client that serves RUF-by-crate
// metadata; rufregistry only drives this interface.
type RufMetadataClient interface {
	VersionsWithRufs(ctx context.Context, crateName string) ([]depmanager.RegistryVersion, error)
}

// SparseIndexClient is the sparse registry HTTP client; rufregistry only
// drives this interface.
type SparseIndexClient interface {
	DependencyRequirements(ctx context.Context, crateName, version string) ([]depmanager.Requirement, error)
}

// Registry implements depmanager.RufRegistry.
type Registry struct {
	metadata RufMetadataClient
	sparse   SparseIndexClient
	cache    *boltCache
}

// New opens (creating if absent) a BoltDB cache at cacheDir and returns a
// Registry backed by metadata for RUF lookups and sparse for the HTTP
// fallback tier of dependency requirement lookups.
func New(cacheDir string, metadata RufMetadataClient, sparse SparseIndexClient) (*Registry, error) {
	cache, err := newBoltCache(cacheDir)
	if err != nil {
		return nil, err
	}
	return &Registry{metadata: metadata, sparse: sparse, cache: cache}, nil
}

// Close releases the cache's file handle.
func (r *Registry) Close() error {
	return r.cache.close()
}

// VersionsWithRufs returns every published version of crateName with its
// declared RUFs. Fails with Unexpected if the backing store is unreachable.
func (r *Registry) VersionsWithRufs(ctx context.Context, crateName string) ([]depmanager.RegistryVersion, error) {
	vs, err := r.metadata.VersionsWithRufs(ctx, crateName)
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "querying RUF metadata for %s", crateName))
	}
	return vs, nil
}

// DependencyRequirements returns the manifest-declared dependency
// requirements of a specific published version, checking the local BoltDB
// cache first and falling back to the sparse registry over HTTP, caching
// the result for next time. Fails with Unexpected if neither tier returns
// a record.
func (r *Registry) DependencyRequirements(ctx context.Context, crateName string, version *semver.Version) ([]depmanager.Requirement, error) {
	verStr := version.String()

	if reqs, ok, err := r.cache.getRequirements(crateName, verStr); err != nil {
		return nil, auditerr.Wrap(err)
	} else if ok {
		return reqs, nil
	}

	reqs, err := r.sparse.DependencyRequirements(ctx, crateName, verStr)
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "fetching dependency requirements for %s@%s from sparse registry", crateName, verStr))
	}

	if err := r.cache.putRequirements(crateName, verStr, reqs); err != nil {
		return nil, auditerr.Wrap(err)
	}

	return reqs, nil
}

// boltCache is the local on-disk cache tier: a single bolt.DB file under
// the cache directory, opened once, holding JSON-encoded values under
// string keys.
type boltCache struct {
	db *bolt.DB
}

func newBoltCache(cacheDir string) (*boltCache, error) {
	path := filepath.Join(cacheDir, "ruf-registry.db")
	if fi, err := os.Stat(cacheDir); os.IsNotExist(err) {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, auditerr.Wrap(errors.Wrapf(err, "creating cache directory %s", cacheDir))
		}
	} else if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "checking cache directory %s", cacheDir))
	} else if !fi.IsDir() {
		return nil, auditerr.Wrap(fmt.Errorf("cache path %s is not a directory", cacheDir))
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "opening BoltDB cache file %q", path))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(versionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(reqsBucket)
		return err
	})
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrap(err, "initializing BoltDB buckets"))
	}

	return &boltCache{db: db}, nil
}

func (c *boltCache) close() error {
	return errors.Wrap(c.db.Close(), "closing BoltDB cache")
}

type cachedReqs struct {
	Requirements []cachedRequirement `json:"requirements"`
}

type cachedRequirement struct {
	DepName string `json:"dep_name"`
	Range   string `json:"range"`
}

func reqCacheKey(crateName, version string) []byte {
	return []byte(crateName + "@" + version)
}

func (c *boltCache) getRequirements(crateName, version string) ([]depmanager.Requirement, bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(reqsBucket)
		v := b.Get(reqCacheKey(crateName, version))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "reading requirements cache")
	}
	if raw == nil {
		return nil, false, nil
	}

	var cr cachedReqs
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, false, errors.Wrap(err, "decoding cached requirements")
	}

	out := make([]depmanager.Requirement, 0, len(cr.Requirements))
	for _, r := range cr.Requirements {
		c, err := semver.NewConstraint(r.Range)
		if err != nil {
			return nil, false, errors.Wrapf(err, "parsing cached constraint %q", r.Range)
		}
		out = append(out, depmanager.Requirement{DepName: r.DepName, Raw: r.Range, Range: c})
	}
	return out, true, nil
}

func (c *boltCache) putRequirements(crateName, version string, reqs []depmanager.Requirement) error {
	cr := cachedReqs{Requirements: make([]cachedRequirement, 0, len(reqs))}
	for _, r := range reqs {
		cr.Requirements = append(cr.Requirements, cachedRequirement{DepName: r.DepName, Range: r.Raw})
	}
	raw, err := json.Marshal(cr)
	if err != nil {
		return errors.Wrap(err, "encoding requirements for cache")
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(reqsBucket)
		return b.Put(reqCacheKey(crateName, version), raw)
	})
}

// HTTPSparseIndexClient is a minimal real implementation of
// SparseIndexClient against a crates.io-style sparse HTTP index, following
// the plain net/http usage the rest of the pack relies on (no HTTP
// framework) for simple GET-and-decode calls.
type HTTPSparseIndexClient struct {
	BaseURL string
	Client  *http.Client
}

func (h *HTTPSparseIndexClient) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

type sparseIndexLine struct {
	Name string                  `json:"name"`
	Vers string                  `json:"vers"`
	Deps []sparseIndexDependency `json:"deps"`
}

type sparseIndexDependency struct {
	Name string `json:"name"`
	Req  string `json:"req"`
}

// DependencyRequirements fetches the sparse index entry for crateName and
// extracts the dependency requirements of the given version.
func (h *HTTPSparseIndexClient) DependencyRequirements(ctx context.Context, crateName, version string) ([]depmanager.Requirement, error) {
	url := h.BaseURL + "/" + sparseIndexPath(crateName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building sparse index request")
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching sparse index for %s", crateName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sparse index returned %s for %s", resp.Status, crateName)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var line sparseIndexLine
		if err := dec.Decode(&line); err != nil {
			break
		}
		if line.Vers != version {
			continue
		}
		out := make([]depmanager.Requirement, 0, len(line.Deps))
		for _, d := range line.Deps {
			c, err := semver.NewConstraint(d.Req)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing requirement %q on %s", d.Req, d.Name)
			}
			out = append(out, depmanager.Requirement{DepName: d.Name, Raw: d.Req, Range: c})
		}
		return out, nil
	}

	return nil, fmt.Errorf("version %s of %s not found in sparse index", version, crateName)
}

// sparseIndexPath implements crates.io's sparse-index sharding convention
// (1/2/3-letter names get shallower paths; everything else is nested by
// first four characters).
func sparseIndexPath(name string) string {
	switch len(name) {
	case 1:
		return "1/" + name
	case 2:
		return "2/" + name
	case 3:
		return "3/" + name[:1] + "/" + name
	default:
		return name[:2] + "/" + name[2:4] + "/" + name
	}
}
