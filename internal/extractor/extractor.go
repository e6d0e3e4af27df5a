// Package extractor runs the build tool with this binary acting as the
// compiler wrapper, collects the CDelimiter-framed records each wrapped
// compiler invocation prints, and merges them per crate.
package extractor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/buildconfig"
	"github.com/golang-dep-labs/ruf-audit/internal/output"
	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

// Extractor runs the ecosystem build tool (cargo) wrapped by this binary.
type Extractor struct {
	// BuildToolPath is the build tool binary, e.g. "cargo".
	BuildToolPath string
	// WrapperPath is the absolute path to this binary, invoked by the
	// build tool through RUSTC_WRAPPER for every compiler invocation.
	WrapperPath string
	// NightlyToolchain pins RUSTUP_TOOLCHAIN so the scanner's front-end ABI
	// matches what it was built against.
	NightlyToolchain string
}

// Extract runs `cargo build --keep-going <passthrough...>` wrapped by this
// binary, and returns the merged per-crate RUF map, updating cfg's
// per-crate cfg sets as a side effect.
func (e *Extractor) Extract(ctx context.Context, cfg *buildconfig.Config, passthrough []string, log *output.Logger) (map[string]wire.UsedRufs, error) {
	args := append([]string{"build", "--keep-going"}, passthrough...)
	cmd := exec.CommandContext(ctx, e.BuildToolPath, args...)
	cmd.Env = append(os.Environ(),
		"RUSTC_WRAPPER="+e.WrapperPath,
		"RUSTUP_TOOLCHAIN="+e.NightlyToolchain,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrap(err, "piping build tool stdout"))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, auditerr.Wrap(errors.Wrap(err, "piping build tool stderr"))
	}

	if err := cmd.Start(); err != nil {
		return nil, auditerr.Wrap(errors.Wrap(err, "starting build tool"))
	}

	merged := make(map[string]wire.UsedRufs)
	cfgSets := make(map[string]map[string]struct{})

	mergeLine := func(line string) error {
		ci, ok, err := wire.DecodeCDelimiter(line)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		mergeCheckInfo(merged, cfgSets, ci)
		return nil
	}

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var scanErr error
	for sc.Scan() {
		if err := mergeLine(sc.Text()); err != nil {
			scanErr = err
			break
		}
	}

	firstErrLine := ""
	errSc := bufio.NewScanner(stderr)
	for errSc.Scan() {
		line := errSc.Text()
		if firstErrLine == "" {
			firstErrLine = line
		}
		log.Verbosef("%s\n", line)
	}

	waitErr := cmd.Wait()

	if scanErr != nil {
		return nil, auditerr.Wrap(errors.Wrap(scanErr, "parsing CDelimiter output"))
	}

	if waitErr != nil {
		if isKeepGoing(args) && len(merged) > 0 {
			// Partial extraction is allowed in keep-going mode: the goal
			// is RUF discovery, not a complete build.
			log.Verbosef("build tool exited non-zero under --keep-going; using partial extraction\n")
		} else {
			msg := firstErrLine
			if msg == "" {
				msg = waitErr.Error()
			}
			return nil, auditerr.Wrap(fmt.Errorf("build tool failed: %s", msg))
		}
	}

	for crate, set := range cfgSets {
		flat := make([]string, 0, len(set))
		for p := range set {
			flat = append(flat, p)
		}
		cfg.UpdateCfg(crate, flat)
	}

	return merged, nil
}

func isKeepGoing(args []string) bool {
	for _, a := range args {
		if a == "--keep-going" {
			return true
		}
	}
	return false
}

func mergeCheckInfo(merged map[string]wire.UsedRufs, cfgSets map[string]map[string]struct{}, ci wire.CheckInfo) {
	existing := merged[ci.CrateName].Set()
	for _, f := range ci.UsedRufs {
		existing[f] = struct{}{}
	}
	flat := make([]string, 0, len(existing))
	for f := range existing {
		flat = append(flat, f)
	}
	merged[ci.CrateName] = flat

	set, ok := cfgSets[ci.CrateName]
	if !ok {
		set = make(map[string]struct{})
		cfgSets[ci.CrateName] = set
	}
	for _, c := range ci.Cfg {
		set[c] = struct{}{}
	}
}

// WrapperMode implements the compiler-wrapper dispatch:
// when invoked with argv[1] = the real compiler's absolute path, this
// process either execs the real compiler untouched (information-only
// invocations, argv[2] == "-") or execs the scanner sibling to emit a
// CDelimiter record before invoking the real compiler so the package
// manager's incremental state still advances.
func WrapperMode(ctx context.Context, rustc string, rest []string, scannerPath string, stdout, stderr io.Writer) error {
	if len(rest) > 0 && rest[0] == "-" {
		return execVerbatim(ctx, rustc, rest, stdout, stderr)
	}

	scanArgs := append([]string{"--checkinfo", "--rustc", rustc, "--"}, rest...)
	scan := exec.CommandContext(ctx, scannerPath, scanArgs...)
	scan.Stdout = stdout
	scan.Stderr = stderr
	if err := scan.Run(); err != nil {
		return auditerr.Wrap(errors.Wrap(err, "running scanner in wrapper mode"))
	}

	return execVerbatim(ctx, rustc, rest, stdout, stderr)
}

func execVerbatim(ctx context.Context, rustc string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, rustc, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return auditerr.Wrap(errors.Wrap(err, "invoking real compiler"))
	}
	return nil
}
