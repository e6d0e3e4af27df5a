package rufregistry

import (
	"context"
	"encoding/json"
	"os"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/golang-dep-labs/ruf-audit/internal/depmanager"
	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

// JSONSnapshotMetadataClient is a minimal real RufMetadataClient: it reads a
// single JSON file mapping crate name to its published versions and
// declared RUFs, the shape a local mirror of the metadata service would be
// dumped to. A true backing service lives elsewhere; this is enough to
// exercise the RufMetadataClient seam with a real file on disk instead of a
// hand-rolled test fake.
type JSONSnapshotMetadataClient struct {
	Path string
}

type snapshotFile struct {
	Crates map[string][]snapshotVersion `json:"crates"`
}

type snapshotVersion struct {
	Version string            `json:"version"`
	Rufs    []snapshotCondRuf `json:"rufs"`
}

type snapshotCondRuf struct {
	Cond    string `json:"cond,omitempty"`
	Feature string `json:"feature"`
}

func (j *JSONSnapshotMetadataClient) VersionsWithRufs(ctx context.Context, crateName string) ([]depmanager.RegistryVersion, error) {
	f, err := os.Open(j.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening RUF metadata snapshot %s", j.Path)
	}
	defer f.Close()

	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "decoding RUF metadata snapshot")
	}

	rows := snap.Crates[crateName]
	out := make([]depmanager.RegistryVersion, 0, len(rows))
	for _, row := range rows {
		v, err := semver.NewVersion(row.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing version %q of %s", row.Version, crateName)
		}
		rufs := make(wire.CondRufs, 0, len(row.Rufs))
		for _, r := range row.Rufs {
			rufs = append(rufs, wire.ConditionalRuf{Cond: r.Cond, Feature: r.Feature})
		}
		out = append(out, depmanager.RegistryVersion{Version: v, Rufs: rufs})
	}
	return out, nil
}
