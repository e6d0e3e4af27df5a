package depmanager

import (
	"context"

	"github.com/Masterminds/semver"

	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

// RegistryVersion is one published version of a crate together with the
// RUFs it declares (possibly conditionally).
type RegistryVersion struct {
	Version *semver.Version
	Rufs    wire.CondRufs
}

// RufRegistry is the registry contract as consumed by Manager: read-only
// queries against the crate metadata service.
type RufRegistry interface {
	// VersionsWithRufs returns every published version of crateName with
	// its declared (conditional) RUFs.
	VersionsWithRufs(ctx context.Context, crateName string) ([]RegistryVersion, error)
	// DependencyRequirements returns the manifest-declared dependency
	// requirements of one published version, consulting a local on-disk
	// cache tier before falling back to the sparse registry over HTTP.
	DependencyRequirements(ctx context.Context, crateName string, version *semver.Version) ([]Requirement, error)
}
