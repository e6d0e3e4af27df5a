package depmanager

import (
	"context"
	"sort"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

// LocalCrateTable maps "name@version" to the dependency requirements of a
// workspace/path member, answered without ever touching the registry.
type LocalCrateTable map[string][]Requirement

func localKey(name, version string) string { return name + "@" + version }

// PackageManager is the narrow adapter to the ecosystem's package-manager
// CLI. The lockfile is the sole mutable resource and only Manager.Update
// and Manager.RegenerateMinimal call into it.
type PackageManager interface {
	// UpdatePrecise rewrites the lockfile so name@current becomes
	// name@target at a precise pin (cargo update --precise).
	UpdatePrecise(ctx context.Context, name, current, target string) error
	// GenerateMinimalVersions regenerates the lockfile at the minimal
	// versions satisfying every requirement (cargo generate-lockfile -Z
	// minimal-versions), used by the compiler-fix fallback.
	GenerateMinimalVersions(ctx context.Context) error
}

// Manager owns the parsed lockfile graph, the local crate table, and the
// req_by cache, and mutates the graph through a PackageManager.
type Manager struct {
	graph    *Graph
	local    LocalCrateTable
	registry RufRegistry
	pm       PackageManager
	lockPath string
	rootName string

	reqBy map[NodeID]NodeID // child -> most restrictive parent; cleared on mutation
}

// New constructs a Manager from an already-parsed graph.
func New(graph *Graph, local LocalCrateTable, registry RufRegistry, pm PackageManager, lockPath, rootName string) *Manager {
	return &Manager{
		graph:    graph,
		local:    local,
		registry: registry,
		pm:       pm,
		lockPath: lockPath,
		rootName: rootName,
		reqBy:    make(map[NodeID]NodeID),
	}
}

// Root returns the root node id.
func (m *Manager) Root() NodeID { return m.graph.Root }

// Graph exposes the underlying DAG view.
func (m *Manager) Graph() *Graph { return m.graph }

// ReqBy returns the most-restrictive parent recorded for n, if any.
func (m *Manager) ReqBy(n NodeID) (NodeID, bool) {
	id, ok := m.reqBy[n]
	return id, ok
}

// requirementsOf returns the dependency requirements of node n, using the
// local crate table if n is local, else the registry.
func (m *Manager) requirementsOf(ctx context.Context, n Node) ([]Requirement, error) {
	if n.Local {
		return m.local[localKey(n.Name, n.Version.String())], nil
	}
	reqs, err := m.registry.DependencyRequirements(ctx, n.Name, n.Version)
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "fetching dependency requirements for %s", n))
	}
	return reqs, nil
}

// requirementOn returns parent's requirement on depCrateName, if any.
func (m *Manager) requirementOn(ctx context.Context, parent Node, depCrateName string) (Requirement, bool, error) {
	reqs, err := m.requirementsOf(ctx, parent)
	if err != nil {
		return Requirement{}, false, err
	}
	for _, r := range reqs {
		if r.DepName == depCrateName {
			return r, true, nil
		}
	}
	return Requirement{}, false, nil
}

// GetCandidates computes get_candidates(node): for non-local nodes, every
// published version strictly less than node's current version that
// satisfies every parent's semver requirement. It also populates req_by
// with the most-restrictive parent, per the "lowest version still admitted"
// heuristic. Local nodes (and the root) always return empty; we never
// rewrite workspace packages.
func (m *Manager) GetCandidates(ctx context.Context, n NodeID) (map[string]wire.CondRufs, error) {
	node := m.graph.Nodes[n]
	if node.Local {
		return nil, nil
	}

	all, err := m.registry.VersionsWithRufs(ctx, node.Name)
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "fetching versions for %s", node.Name))
	}

	parents := m.graph.Parents(n)
	type parentReq struct {
		parent NodeID
		c      *semver.Constraints
	}
	var preqs []parentReq
	for _, p := range parents {
		r, ok, err := m.requirementOn(ctx, m.graph.Nodes[p], node.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			preqs = append(preqs, parentReq{p, r.Range})
		}
	}

	// Lowest version each parent's requirement still admits, computed over
	// the full published-version list (not yet filtered to "strictly less
	// than current").
	sorted := append([]RegistryVersion(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version.LessThan(sorted[j].Version) })

	lowestFor := func(c *semver.Constraints) (*semver.Version, bool) {
		for _, rv := range sorted {
			if c.Check(rv.Version) {
				return rv.Version, true
			}
		}
		return nil, false
	}

	var minLowest *semver.Version
	lowests := make(map[NodeID]*semver.Version, len(preqs))
	for _, pr := range preqs {
		lv, ok := lowestFor(pr.c)
		if !ok {
			continue
		}
		lowests[pr.parent] = lv
		if minLowest == nil || lv.LessThan(minLowest) {
			minLowest = lv
		}
	}

	// Most restrictive parent: the one whose lowest admitted version
	// strictly exceeds the overall minimum. Only the first such parent is
	// recorded, in parent-list order.
	delete(m.reqBy, n)
	if minLowest != nil {
		for _, pr := range preqs {
			lv, ok := lowests[pr.parent]
			if ok && lv.GreaterThan(minLowest) {
				m.reqBy[n] = pr.parent
				break
			}
		}
	}

	out := make(map[string]wire.CondRufs)
	for _, rv := range all {
		if !rv.Version.LessThan(node.Version) {
			continue
		}
		admitted := true
		for _, pr := range preqs {
			if !pr.c.Check(rv.Version) {
				admitted = false
				break
			}
		}
		if admitted {
			out[rv.Version.String()] = rv.Rufs
		}
	}
	return out, nil
}

// GetCandidatesUpFix computes get_candidates_up_fix(parent, child):
// versions of parent that are themselves valid down-fix candidates for
// parent AND either drop the dependency on child's crate or express a
// different semver requirement on it than the current one.
func (m *Manager) GetCandidatesUpFix(ctx context.Context, parent, child NodeID) (map[string]wire.CondRufs, error) {
	parentNode := m.graph.Nodes[parent]
	childNode := m.graph.Nodes[child]

	cands, err := m.GetCandidates(ctx, parent)
	if err != nil {
		return nil, err
	}

	curReq, curHas, err := m.requirementOn(ctx, parentNode, childNode.Name)
	if err != nil {
		return nil, err
	}

	out := make(map[string]wire.CondRufs)
	for verStr, rufs := range cands {
		v, err := semver.NewVersion(verStr)
		if err != nil {
			return nil, auditerr.Wrap(err)
		}
		reqs, err := m.registry.DependencyRequirements(ctx, parentNode.Name, v)
		if err != nil {
			return nil, auditerr.Wrap(errors.Wrapf(err, "fetching requirements for candidate %s@%s", parentNode.Name, verStr))
		}
		var newReq Requirement
		found := false
		for _, r := range reqs {
			if r.DepName == childNode.Name {
				newReq = r
				found = true
				break
			}
		}

		if !found {
			// Candidate parent version drops the dependency entirely.
			out[verStr] = rufs
			continue
		}
		if !curHas || newReq.Raw != curReq.Raw {
			out[verStr] = rufs
		}
	}
	return out, nil
}

// PickByPolicy selects a version from cands according to the newer-fix
// policy: maximum if newerFix, else minimum. Ties cannot occur (semver
// versions are distinct).
func PickByPolicy(cands map[string]wire.CondRufs, newerFix bool) (string, bool) {
	if len(cands) == 0 {
		return "", false
	}
	var versions []*semver.Version
	for verStr := range cands {
		v, err := semver.NewVersion(verStr)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return "", false
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].LessThan(versions[j]) })
	if newerFix {
		return versions[len(versions)-1].String(), true
	}
	return versions[0].String(), true
}

// Update invokes the package manager to rewrite the lockfile so that
// name@current becomes name@newVersion at a precise pin, reloads the
// graph, and clears req_by. req_by must be cleared immediately after any
// update to stay consistent with the current graph.
func (m *Manager) Update(ctx context.Context, name, current, newVersion string) error {
	if err := m.pm.UpdatePrecise(ctx, name, current, newVersion); err != nil {
		return auditerr.Wrap(errors.Wrapf(err, "updating %s from %s to %s", name, current, newVersion))
	}

	g, err := ReadLockfile(m.lockPath, m.rootName)
	if err != nil {
		return err
	}
	m.graph = g
	m.reqBy = make(map[NodeID]NodeID)
	return nil
}

// RegenerateMinimal asks the package manager to regenerate the lockfile at
// minimal versions, then reloads the graph. Used by the compiler-fix
// fallback (4.6.b).
func (m *Manager) RegenerateMinimal(ctx context.Context) error {
	if err := m.pm.GenerateMinimalVersions(ctx); err != nil {
		return auditerr.Wrap(errors.Wrap(err, "regenerating lockfile at minimal versions"))
	}
	g, err := ReadLockfile(m.lockPath, m.rootName)
	if err != nil {
		return err
	}
	m.graph = g
	m.reqBy = make(map[NodeID]NodeID)
	return nil
}
