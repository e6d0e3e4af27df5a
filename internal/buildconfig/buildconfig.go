// Package buildconfig holds the per-run toolchain and policy state: host
// triple, toolchain home, selected compiler version, per-crate cfg sets,
// and the quick-fix/newer-fix policy flags. It answers RUF-usability
// queries by delegating to rufstatus, and expands conditional RUFs by
// shelling out to a scanner child process -- cfg predicates are the
// compiler's own grammar, and reimplementing the evaluator risks
// divergence.
package buildconfig

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/rufstatus"
	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

// Scanner is the narrow interface buildconfig needs of the scanner sibling
// process, so tests can substitute a fake without spawning a real binary.
type Scanner interface {
	// ScanCfgExpansion runs the scanner in cfg-expansion mode against a
	// synthetic source snippet declaring condRufs under the given --cfg
	// flags, and returns the RUFs the compiler front-end would actually
	// see (the FDelimiter payload).
	ScanCfgExpansion(ctx context.Context, snippet string, cfgFlags []string) ([]string, error)
}

// Config is the per-run build configuration: host/toolchain/compiler state
// plus the per-crate cfg map and policy flags.
type Config struct {
	Host          string
	ToolchainHome string
	CompilerVer   int
	PassThrough   []string // args forwarded verbatim to the build tool after `--`

	cfgs map[string]map[string]struct{} // crate name -> cfg predicate set

	quickFix bool
	newerFix bool

	table   *rufstatus.Table
	scanner Scanner
}

// New returns a Config for the given host/toolchain/compiler, backed by
// table for usability queries and scanner for cfg expansion.
func New(host, toolchainHome string, compilerVer int, table *rufstatus.Table, scanner Scanner) *Config {
	return &Config{
		Host:          host,
		ToolchainHome: toolchainHome,
		CompilerVer:   compilerVer,
		cfgs:          make(map[string]map[string]struct{}),
		table:         table,
		scanner:       scanner,
	}
}

// RufsUsable reports whether every feature in rufs is usable under the
// current compiler version. The empty set is usable.
func (c *Config) RufsUsable(rufs wire.UsedRufs) bool {
	for _, f := range rufs {
		if !c.table.Status(f, c.CompilerVer).IsUsable() {
			return false
		}
	}
	return true
}

// UsableCompilersFor delegates to the status table.
func (c *Config) UsableCompilersFor(rufs wire.UsedRufs) rufstatus.CompilerSet {
	return c.table.UsableCompilersFor(rufs)
}

// UpdateCfg replaces the recorded cfg set for crateName. Replacement, not
// union: each extraction pass reports the full cfg set in force.
func (c *Config) UpdateCfg(crateName string, cfgs []string) {
	set := make(map[string]struct{}, len(cfgs))
	for _, p := range cfgs {
		set[p] = struct{}{}
	}
	c.cfgs[crateName] = set
}

// CfgFor returns the recorded cfg predicates for crateName, as --cfg flags.
func (c *Config) CfgFor(crateName string) []string {
	set, ok := c.cfgs[crateName]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, "--cfg", p)
	}
	return out
}

// SetQuickFix mutates the quick-fix policy flag.
func (c *Config) SetQuickFix(v bool) { c.quickFix = v }

// QuickFix reports the current quick-fix policy flag.
func (c *Config) QuickFix() bool { return c.quickFix }

// SetNewerFix mutates the newer-fix policy flag.
func (c *Config) SetNewerFix(v bool) { c.newerFix = v }

// NewerFix reports the current newer-fix policy flag.
func (c *Config) NewerFix() bool { return c.newerFix }

// FilterRufs expands the conditional RUFs of a candidate version of
// crateName into the set that would actually be declared under the crate's
// recorded cfg set. Unconditional RUFs pass straight through; each
// conditional RUF is emitted into a synthetic
// `#![cfg_attr(<cond>, feature(<name>))]` snippet handed to the scanner
// along with the crate's --cfg flags.
func (c *Config) FilterRufs(ctx context.Context, crateName string, condRufs wire.CondRufs) (wire.UsedRufs, error) {
	var unconditional []string
	var snippet strings.Builder

	for _, cr := range condRufs {
		if cr.Cond == "" {
			unconditional = append(unconditional, cr.Feature)
			continue
		}
		fmt.Fprintf(&snippet, "#![cfg_attr(%s, feature(%s))]\n", cr.Cond, cr.Feature)
	}

	if snippet.Len() == 0 {
		return wire.UsedRufs(unconditional), nil
	}

	expanded, err := c.scanner.ScanCfgExpansion(ctx, snippet.String(), c.CfgFor(crateName))
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrapf(err, "scanning cfg expansion for %s", crateName))
	}

	return wire.UsedRufs(append(unconditional, expanded...)), nil
}

// ProcessScanner is the real Scanner implementation: it runs the scanner
// binary with --expand-cfg and the crate's --cfg flags, feeds it the
// snippet on stdin, and parses its FDelimiter stdout line.
type ProcessScanner struct {
	ScannerPath string
	// ToolchainLibDir, when set, is exported as LD_LIBRARY_PATH so the
	// scanner finds the pinned toolchain's runtime libraries.
	ToolchainLibDir string
}

func (p *ProcessScanner) ScanCfgExpansion(ctx context.Context, snippet string, cfgFlags []string) ([]string, error) {
	args := append([]string{"--expand-cfg"}, cfgFlags...)
	cmd := exec.CommandContext(ctx, p.ScannerPath, args...)
	cmd.Stdin = strings.NewReader(snippet)
	if p.ToolchainLibDir != "" {
		cmd.Env = append(os.Environ(), "LD_LIBRARY_PATH="+p.ToolchainLibDir)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "piping scanner stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting scanner")
	}

	var rufs []string
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		if parsed, ok, err := wire.DecodeFDelimiter(sc.Text()); err != nil {
			return nil, errors.Wrap(err, "decoding scanner output")
		} else if ok {
			rufs = parsed
		}
	}

	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrap(err, "scanner exited with error")
	}

	return rufs, nil
}
