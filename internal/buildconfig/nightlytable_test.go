package buildconfig

import (
	"testing"

	"github.com/golang-dep-labs/ruf-audit/internal/rufstatus"
)

func TestNightlyToolchainKnownVersion(t *testing.T) {
	got, ok := NightlyToolchain(1)
	if !ok || got != "nightly-2015-05-16" {
		t.Fatalf("got (%q, %v), want (nightly-2015-05-16, true)", got, ok)
	}
}

func TestNightlyToolchainUnknownVersion(t *testing.T) {
	if _, ok := NightlyToolchain(0); ok {
		t.Fatal("expected compiler version 0 to have no pinned nightly")
	}
	if _, ok := NightlyToolchain(rufstatus.MaxCompilerVersion); ok {
		t.Fatal("expected out-of-range compiler version to have no pinned nightly")
	}
}
