// Package engine implements the audit's repair loop: extract a package's
// RUF footprint, and on failure walk the locked dependency graph
// attempting down-fix, up-fix, and finally compiler-fix, in that order.
package engine

import (
	"context"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/buildconfig"
	"github.com/golang-dep-labs/ruf-audit/internal/depmanager"
	"github.com/golang-dep-labs/ruf-audit/internal/output"
	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

// Extractor is the narrow interface the engine needs of the RUF extractor.
type Extractor interface {
	Extract(ctx context.Context, cfg *buildconfig.Config, passthrough []string, log *output.Logger) (map[string]wire.UsedRufs, error)
}

// Engine drives the audit: one Config/Manager/Extractor triple per run.
type Engine struct {
	Config      *buildconfig.Config
	Manager     *depmanager.Manager
	Extractor   Extractor
	Passthrough []string
	Log         *output.Logger
}

// Audit runs the full repair algorithm and returns the process exit code,
// plus an error (nil on success).
func (e *Engine) Audit(ctx context.Context) (int, error) {
	e.Log.Starting("auditing RUF usage")

	rufs, err := e.Extractor.Extract(ctx, e.Config, e.Passthrough, e.Log)
	if err != nil {
		e.Log.Error("%v", err)
		return auditerr.ExitCode(err), err
	}

	if allUsable(e.Config, rufs) {
		e.Log.Fixed("no repair needed, all RUFs usable under the current compiler")
		return auditerr.ExitSuccess, nil
	}

	if !e.Config.QuickFix() {
		if err := e.depTreeFix(ctx, rufs); err == nil {
			e.Log.Fixed("repaired dependency graph")
			return auditerr.ExitSuccess, nil
		} else if _, isUnexpected := err.(*auditerr.Unexpected); isUnexpected {
			e.Log.Error("%v", err)
			return auditerr.ExitCode(err), err
		}
		// Functionality errors from dep-tree-fix fall through to
		// compiler-fix, unless quick-fix bypassed it (it didn't, here).
	}

	ver, err := e.compilerFix(ctx)
	if err != nil {
		e.Log.Failed("%v", err)
		return auditerr.ExitCode(err), err
	}
	e.Log.Fixed("compiler %d is compatible with the current dependency graph", ver)
	return auditerr.ExitSuccess, nil
}

// allUsable reports whether every crate's RUFs are usable under the
// current compiler. Scans all crates rather than halting on the first
// offender, so the initial check sees the whole footprint.
func allUsable(cfg *buildconfig.Config, rufs map[string]wire.UsedRufs) bool {
	usable := true
	for _, fs := range rufs {
		if !cfg.RufsUsable(fs) {
			usable = false
		}
	}
	return usable
}

// depTreeFix is 4.6.a: BFS from the root, repair the first offending node
// found, re-extract, repeat until none remain or up-fix fails at the root.
func (e *Engine) depTreeFix(ctx context.Context, rufs map[string]wire.UsedRufs) error {
	for {
		offender, found := e.findOffender(rufs)
		if !found {
			return nil
		}

		node := e.Manager.Graph().Nodes[offender]
		e.Log.Detect("%s uses unusable RUFs", node)

		resolved, err := e.attemptDownFix(ctx, offender)
		if err != nil {
			return err
		}
		if !resolved {
			if err := e.upFix(ctx, offender); err != nil {
				if _, isUnexpected := err.(*auditerr.Unexpected); isUnexpected {
					return err
				}
				return auditerr.Fail("up fix fails")
			}
		}

		rufs, err = e.Extractor.Extract(ctx, e.Config, e.Passthrough, e.Log)
		if err != nil {
			return err
		}
	}
}

// findOffender runs the graph's BFS and returns the first node whose
// recorded RUFs are not usable.
func (e *Engine) findOffender(rufs map[string]wire.UsedRufs) (depmanager.NodeID, bool) {
	var offender depmanager.NodeID
	found := false
	e.Manager.Graph().BFS(func(id depmanager.NodeID) bool {
		node := e.Manager.Graph().Nodes[id]
		if !e.Config.RufsUsable(rufs[node.Name]) {
			offender = id
			found = true
			return false
		}
		return true
	})
	return offender, found
}

// attemptDownFix tries step 2-3 of 4.6.a: select a usable candidate version
// of the offending node itself. Returns resolved=true and updates the
// graph on success; resolved=false (no error) means up-fix must be tried.
func (e *Engine) attemptDownFix(ctx context.Context, offender depmanager.NodeID) (bool, error) {
	node := e.Manager.Graph().Nodes[offender]

	cands, err := e.Manager.GetCandidates(ctx, offender)
	if err != nil {
		return false, err
	}

	usable, err := e.filterUsableCandidates(ctx, node.Name, cands)
	if err != nil {
		return false, err
	}
	if len(usable) == 0 {
		return false, nil
	}

	pick, _ := depmanager.PickByPolicy(usable, e.Config.NewerFix())
	e.Log.Fixing("down-fixing %s to %s", node.Name, pick)
	if err := e.Manager.Update(ctx, node.Name, node.Version.String(), pick); err != nil {
		return false, err
	}
	return true, nil
}

// filterUsableCandidates narrows cands to the versions whose
// (cfg-expanded) RUFs are all usable under the current compiler.
func (e *Engine) filterUsableCandidates(ctx context.Context, crateName string, cands map[string]wire.CondRufs) (map[string]wire.CondRufs, error) {
	usable := make(map[string]wire.CondRufs)
	for ver, condRufs := range cands {
		filtered, err := e.Config.FilterRufs(ctx, crateName, condRufs)
		if err != nil {
			return nil, err
		}
		if e.Config.RufsUsable(filtered) {
			usable[ver] = condRufs
		}
	}
	return usable, nil
}

// upFix relaxes the graph above a child node that cannot be down-fixed:
// try each parent in turn; recurse on the parents if none has a directly
// usable candidate.
func (e *Engine) upFix(ctx context.Context, child depmanager.NodeID) error {
	parents := e.Manager.Graph().Parents(child)
	if len(parents) == 0 {
		return auditerr.Fail("up fix failed, reaching root")
	}

	childNode := e.Manager.Graph().Nodes[child]

	for _, parent := range parents {
		parentNode := e.Manager.Graph().Nodes[parent]

		cands, err := e.Manager.GetCandidatesUpFix(ctx, parent, child)
		if err != nil {
			return err
		}

		usable, err := e.filterUsableCandidates(ctx, parentNode.Name, cands)
		if err != nil {
			return err
		}
		if len(usable) == 0 {
			continue
		}

		pick, _ := depmanager.PickByPolicy(usable, e.Config.NewerFix())
		e.Log.Fixing("up-fixing %s to %s to relax constraint on %s", parentNode.Name, pick, childNode.Name)
		if err := e.Manager.Update(ctx, parentNode.Name, parentNode.Version.String(), pick); err != nil {
			return err
		}
		return nil
	}

	// No parent had a directly usable candidate: recurse up-fix on each
	// parent, returning on the first success and propagating Unexpected
	// errors immediately.
	for _, parent := range parents {
		err := e.upFix(ctx, parent)
		if err == nil {
			return nil
		}
		if _, isUnexpected := err.(*auditerr.Unexpected); isUnexpected {
			return err
		}
	}

	return auditerr.Fail("up fix fails at current layer")
}

// compilerFix is 4.6.b: regenerate the lockfile at minimal versions,
// re-extract, and pick the newest compiler version that satisfies every
// observed RUF.
func (e *Engine) compilerFix(ctx context.Context) (int, error) {
	if err := e.Manager.RegenerateMinimal(ctx); err != nil {
		return 0, err
	}

	rufs, err := e.Extractor.Extract(ctx, e.Config, e.Passthrough, e.Log)
	if err != nil {
		return 0, err
	}

	var all []string
	for _, fs := range rufs {
		all = append(all, fs...)
	}

	usable := e.Config.UsableCompilersFor(all)
	if usable.Empty() {
		return 0, auditerr.Fail("cannot find usable rustc")
	}

	max, _ := usable.Max()
	return max, nil
}
