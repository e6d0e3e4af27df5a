package engine

import (
	"context"
	"fmt"

	"github.com/golang-dep-labs/ruf-audit/internal/output"
)

// DiagnosticPoint is one row of the --test four-point matrix.
type DiagnosticPoint struct {
	Name    string
	Verdict string
	Err     error
}

// RunDiagnosticMatrix runs all four points with logging dropped to Quiet
// and reports a one-line verdict per point. Minimal-versions resolution can
// differ across runs, so points are reported independently rather than
// compared against each other.
func (e *Engine) RunDiagnosticMatrix(ctx context.Context) []DiagnosticPoint {
	quiet := output.New(e.Log.Out, e.Log.Err, output.Quiet)
	savedLog := e.Log
	e.Log = quiet
	defer func() { e.Log = savedLog }()

	points := []DiagnosticPoint{
		e.diagnoseNoFix(ctx),
		e.diagnoseCompilerFixOnly(ctx),
		e.diagnoseMinimalTreeOnly(ctx),
		e.diagnoseMinimalTreePlusCompilerFix(ctx),
	}
	return points
}

func (e *Engine) diagnoseNoFix(ctx context.Context) DiagnosticPoint {
	rufs, err := e.Extractor.Extract(ctx, e.Config, e.Passthrough, e.Log)
	if err != nil {
		return DiagnosticPoint{Name: "no-fix", Err: err, Verdict: "extraction failed"}
	}
	if allUsable(e.Config, rufs) {
		return DiagnosticPoint{Name: "no-fix", Verdict: "usable as-is"}
	}
	return DiagnosticPoint{Name: "no-fix", Verdict: "unusable"}
}

func (e *Engine) diagnoseCompilerFixOnly(ctx context.Context) DiagnosticPoint {
	rufs, err := e.Extractor.Extract(ctx, e.Config, e.Passthrough, e.Log)
	if err != nil {
		return DiagnosticPoint{Name: "compiler-fix-only", Err: err, Verdict: "extraction failed"}
	}
	var all []string
	for _, fs := range rufs {
		all = append(all, fs...)
	}
	usable := e.Config.UsableCompilersFor(all)
	if usable.Empty() {
		return DiagnosticPoint{Name: "compiler-fix-only", Verdict: "no compatible compiler"}
	}
	max, _ := usable.Max()
	return DiagnosticPoint{Name: "compiler-fix-only", Verdict: fmt.Sprintf("compiler %d compatible", max)}
}

func (e *Engine) diagnoseMinimalTreeOnly(ctx context.Context) DiagnosticPoint {
	if err := e.Manager.RegenerateMinimal(ctx); err != nil {
		return DiagnosticPoint{Name: "minimal-tree-only", Err: err, Verdict: "regeneration failed"}
	}
	rufs, err := e.Extractor.Extract(ctx, e.Config, e.Passthrough, e.Log)
	if err != nil {
		return DiagnosticPoint{Name: "minimal-tree-only", Err: err, Verdict: "extraction failed"}
	}
	if allUsable(e.Config, rufs) {
		return DiagnosticPoint{Name: "minimal-tree-only", Verdict: "usable at minimal versions"}
	}
	return DiagnosticPoint{Name: "minimal-tree-only", Verdict: "unusable at minimal versions"}
}

func (e *Engine) diagnoseMinimalTreePlusCompilerFix(ctx context.Context) DiagnosticPoint {
	ver, err := e.compilerFix(ctx)
	if err != nil {
		return DiagnosticPoint{Name: "minimal-tree+compiler-fix", Err: err, Verdict: "no compatible compiler"}
	}
	return DiagnosticPoint{Name: "minimal-tree+compiler-fix", Verdict: fmt.Sprintf("compiler %d compatible", ver)}
}
