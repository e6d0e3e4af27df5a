package depmanager

import (
	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
)

// rawManifest mirrors the shape of a Cargo.toml root manifest: the package
// identity and its direct, version-requirement-only dependencies. Build and
// dev dependencies, features, and workspace members are not part of the
// audited surface.
type rawManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies map[string]tomlDep `toml:"dependencies"`
}

// tomlDep accepts either `dep = "1.2"` or `dep = { version = "1.2" }`, the
// two forms Cargo.toml allows for a plain registry dependency.
type tomlDep struct {
	simple  string
	Version string `toml:"version"`
}

func (d *tomlDep) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case string:
		d.simple = t
	case map[string]interface{}:
		if ver, ok := t["version"].(string); ok {
			d.Version = ver
		}
	}
	return nil
}

func (d tomlDep) req() string {
	if d.simple != "" {
		return d.simple
	}
	return d.Version
}

// ReadManifest parses manifestPath (a Cargo.toml) and returns the root
// crate's name and version and a LocalCrateTable entry for the root holding
// its direct dependency requirements.
func ReadManifest(manifestPath string) (rootName, rootVersion string, local LocalCrateTable, err error) {
	var raw rawManifest
	if _, decErr := toml.DecodeFile(manifestPath, &raw); decErr != nil {
		return "", "", nil, auditerr.Wrap(errors.Wrapf(decErr, "decoding manifest %s", manifestPath))
	}

	var reqs []Requirement
	for name, dep := range raw.Dependencies {
		reqStr := dep.req()
		if reqStr == "" {
			continue
		}
		c, constrErr := semver.NewConstraint(reqStr)
		if constrErr != nil {
			return "", "", nil, auditerr.Wrap(errors.Wrapf(constrErr, "parsing requirement %q on %s", reqStr, name))
		}
		reqs = append(reqs, Requirement{DepName: name, Raw: reqStr, Range: c})
	}

	local = LocalCrateTable{
		localKey(raw.Package.Name, raw.Package.Version): reqs,
	}
	return raw.Package.Name, raw.Package.Version, local, nil
}
