package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
)

func TestSplitPassthrough(t *testing.T) {
	flags, pass := splitPassthrough([]string{"-verbose", "--", "--features", "foo"})
	if len(flags) != 1 || flags[0] != "-verbose" {
		t.Fatalf("unexpected flags: %v", flags)
	}
	if len(pass) != 2 || pass[0] != "--features" || pass[1] != "foo" {
		t.Fatalf("unexpected passthrough: %v", pass)
	}
}

func TestSplitPassthroughNoDelimiter(t *testing.T) {
	flags, pass := splitPassthrough([]string{"-verbose", "-quick-fix"})
	if len(flags) != 2 {
		t.Fatalf("unexpected flags: %v", flags)
	}
	if pass != nil {
		t.Fatalf("expected nil passthrough, got %v", pass)
	}
}

func TestGetEnvLastWins(t *testing.T) {
	env := []string{"FOO=bar", "FOO=baz"}
	if got := getEnv(env, "FOO"); got != "baz" {
		t.Fatalf("got %q, want baz", got)
	}
}

func TestGetEnvMissing(t *testing.T) {
	if got := getEnv([]string{"FOO=bar"}, "MISSING"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestRunDetectsWrapperMode(t *testing.T) {
	// With no RUF_AUDIT_SCANNER set, wrapper mode reports the missing
	// scanner and returns before spawning any process.
	var stderr bytes.Buffer
	c := &Config{Args: []string{"ruf-audit", "/usr/bin/rustc", "-"}, Stdout: io.Discard, Stderr: &stderr}
	code := c.Run()
	if code != auditerr.ExitUnexpected || !strings.Contains(stderr.String(), "RUF_AUDIT_SCANNER must name") {
		t.Fatalf("expected wrapper-mode dispatch for an absolute compiler path, got code %d, stderr %q", code, stderr.String())
	}
}

func TestRunDoesNotDetectWrapperModeForFlags(t *testing.T) {
	// The audit flow stops at the missing Cargo.toml in the empty directory.
	var stderr bytes.Buffer
	c := &Config{Args: []string{"ruf-audit", "-verbose"}, WorkingDir: t.TempDir(), Stdout: io.Discard, Stderr: &stderr}
	c.Run()
	if strings.Contains(stderr.String(), "RUF_AUDIT_SCANNER must name") {
		t.Fatal("relative flag arg must not be treated as a compiler path")
	}
}
