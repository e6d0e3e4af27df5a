package depmanager

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
)

// rawLockfile mirrors the Cargo.lock TOML shape: a flat array of packages,
// each naming its direct dependencies as "name version" strings (or bare
// "name" when the name alone disambiguates).
type rawLockfile struct {
	Version int              `toml:"version,omitempty"`
	Package []rawLockPackage `toml:"package"`
}

type rawLockPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source,omitempty"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

// ReadLockfile parses a Cargo.lock file at path into a Graph rooted at
// rootName. The root package is identified by name among the lockfile's
// packages, matching Cargo's convention that the workspace package itself
// also appears in `[[package]]`.
func ReadLockfile(path, rootName string) (*Graph, error) {
	var raw rawLockfile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "decoding lockfile %s", path))
	}

	return graphFromRaw(raw, rootName)
}

func graphFromRaw(raw rawLockfile, rootName string) (*Graph, error) {
	byKey := make(map[string]NodeID, len(raw.Package))
	var g *Graph
	var rootKey string

	// First pass: create every node.
	tmp := make([]struct {
		key string
		pkg rawLockPackage
	}, 0, len(raw.Package))

	for _, p := range raw.Package {
		v, err := semver.NewVersion(p.Version)
		if err != nil {
			return nil, auditerr.Wrap(errors.Wrapf(err, "parsing version of %s", p.Name))
		}
		key := lockKey(p.Name, p.Version)
		tmp = append(tmp, struct {
			key string
			pkg rawLockPackage
		}{key, p})
		if p.Name == rootName {
			rootKey = key
		}
		if g == nil {
			g = &Graph{Forward: make(map[NodeID][]NodeID), Reverse: make(map[NodeID][]NodeID)}
		}
		id := g.AddNode(Node{Name: p.Name, Version: v, Source: p.Source, Local: p.Source == ""})
		byKey[key] = id
	}

	if g == nil || rootKey == "" {
		return nil, auditerr.Wrap(fmt.Errorf("root package %q not found in lockfile", rootName))
	}
	g.Root = byKey[rootKey]

	// Second pass: wire edges.
	for _, t := range tmp {
		parent := byKey[t.key]
		for _, depRef := range t.pkg.Dependencies {
			childKey, err := resolveDependencyRef(depRef, raw.Package)
			if err != nil {
				return nil, auditerr.Wrap(err)
			}
			child, ok := byKey[childKey]
			if !ok {
				return nil, auditerr.Wrap(fmt.Errorf("dependency %q of %s not found among packages", depRef, t.pkg.Name))
			}
			g.AddEdge(parent, child)
		}
	}

	return g, nil
}

func lockKey(name, version string) string {
	return name + " " + version
}

// resolveDependencyRef turns a Cargo.lock dependency reference ("name" or
// "name version") into the canonical "name version" key, disambiguating
// bare names against the full package list (Cargo only omits the version
// when exactly one package of that name is locked).
func resolveDependencyRef(ref string, all []rawLockPackage) (string, error) {
	fields := strings.Fields(ref)
	switch len(fields) {
	case 2:
		return lockKey(fields[0], fields[1]), nil
	case 1:
		name := fields[0]
		var match *rawLockPackage
		for i := range all {
			if all[i].Name == name {
				if match != nil {
					return "", fmt.Errorf("ambiguous dependency reference %q: multiple locked versions", ref)
				}
				match = &all[i]
			}
		}
		if match == nil {
			return "", fmt.Errorf("dependency reference %q: no locked package named %s", ref, name)
		}
		return lockKey(match.Name, match.Version), nil
	default:
		return "", fmt.Errorf("malformed dependency reference %q", ref)
	}
}

// WriteLockfile serializes g back to Cargo.lock-shaped TOML at path,
// preserving each node's source and its resolved dependency edges.
func WriteLockfile(path string, g *Graph) error {
	raw := rawLockfile{Version: 3}
	for id, n := range g.Nodes {
		var deps []string
		for _, child := range g.Children(NodeID(id)) {
			c := g.Nodes[child]
			deps = append(deps, c.Name+" "+c.Version.String())
		}
		raw.Package = append(raw.Package, rawLockPackage{
			Name:         n.Name,
			Version:      n.Version.String(),
			Source:       n.Source,
			Dependencies: deps,
		})
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(raw); err != nil {
		return auditerr.Wrap(errors.Wrap(err, "encoding lockfile"))
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return auditerr.Wrap(errors.Wrapf(err, "writing lockfile %s", path))
	}
	return nil
}
