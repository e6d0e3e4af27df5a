package depmanager

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
)

// CargoPM is the real PackageManager: it shells out to the cargo binary,
// the only process allowed to mutate the lockfile.
type CargoPM struct {
	CargoPath   string
	ManifestDir string
}

func (c *CargoPM) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.CargoPath, args...)
	cmd.Dir = c.ManifestDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "cargo %v: %s", args, out)
	}
	return nil
}

// UpdatePrecise runs `cargo update --precise target --package name@current`.
func (c *CargoPM) UpdatePrecise(ctx context.Context, name, current, target string) error {
	if err := c.run(ctx, "update", "--precise", target, "--package", name+"@"+current); err != nil {
		return auditerr.Wrap(err)
	}
	return nil
}

// GenerateMinimalVersions runs `cargo generate-lockfile -Z minimal-versions`,
// the fallback used by compiler-fix. This requires a nightly toolchain, the
// same one extractor pins via RUSTUP_TOOLCHAIN.
func (c *CargoPM) GenerateMinimalVersions(ctx context.Context) error {
	if err := c.run(ctx, "generate-lockfile", "-Z", "minimal-versions"); err != nil {
		return auditerr.Wrap(err)
	}
	return nil
}
