// Command ruf-audit audits a crate's locked dependency graph for unstable
// language features the selected compiler cannot enable, and repairs the
// graph (or recommends a compatible compiler) when it cannot.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/buildconfig"
	"github.com/golang-dep-labs/ruf-audit/internal/depmanager"
	"github.com/golang-dep-labs/ruf-audit/internal/engine"
	"github.com/golang-dep-labs/ruf-audit/internal/extractor"
	"github.com/golang-dep-labs/ruf-audit/internal/output"
	"github.com/golang-dep-labs/ruf-audit/internal/rufregistry"
	"github.com/golang-dep-labs/ruf-audit/internal/rufstatus"
)

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory", err)
		os.Exit(int(auditerr.ExitUnexpected))
	}
	c := &Config{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
		Env:        os.Environ(),
	}
	os.Exit(c.Run())
}

// A Config specifies a full configuration for a ruf-audit execution.
type Config struct {
	WorkingDir     string
	Args           []string
	Env            []string
	Stdout, Stderr io.Writer
}

// Run executes a configuration and returns a process exit code. It
// dispatches first to compiler-wrapper mode (argv[1] is the absolute path
// to the real compiler), and otherwise runs the normal audit flow.
func (c *Config) Run() int {
	if len(c.Args) >= 2 && filepath.IsAbs(c.Args[1]) {
		return c.runWrapperMode()
	}
	return c.runAudit()
}

// runWrapperMode handles the RUSTC_WRAPPER invocation cargo routes every
// compiler call through.
func (c *Config) runWrapperMode() int {
	rustc := c.Args[1]
	rest := c.Args[2:]
	scannerPath := getEnv(c.Env, "RUF_AUDIT_SCANNER")
	if scannerPath == "" {
		fmt.Fprintln(c.Stderr, "ruf-audit: RUF_AUDIT_SCANNER must name the scanner binary in wrapper mode")
		return int(auditerr.ExitUnexpected)
	}

	if err := extractor.WrapperMode(context.Background(), rustc, rest, scannerPath, c.Stdout, c.Stderr); err != nil {
		fmt.Fprintf(c.Stderr, "ruf-audit: %v\n", err)
		return int(auditerr.ExitCode(err))
	}
	return int(auditerr.ExitSuccess)
}

func (c *Config) runAudit() (exitCode int) {
	fs := flag.NewFlagSet("ruf-audit", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)

	extractOnly := fs.Bool("extract", false, "print the RUF footprint without repair")
	quickFix := fs.Bool("quick-fix", false, "skip dep-tree-fix, use compiler-fix only")
	newerFix := fs.Bool("newer-fix", false, "pick the maximum candidate version instead of the minimum")
	verbose := fs.Bool("verbose", false, "stream child-process stderr to the user")
	runTest := fs.Bool("test", false, "run the four-point diagnostic matrix instead of repairing")

	args, passthrough := splitPassthrough(c.Args[1:])
	resetUsage(fs)
	if err := fs.Parse(args); err != nil {
		return int(auditerr.ExitUnexpected)
	}

	level := output.Normal
	if *verbose {
		level = output.Verbose
	}
	logger := output.New(c.Stdout, c.Stderr, level)

	manifestPath := filepath.Join(c.WorkingDir, "Cargo.toml")
	lockPath := filepath.Join(c.WorkingDir, "Cargo.lock")

	rootName, _, local, mErr := depmanager.ReadManifest(manifestPath)
	if mErr != nil {
		logger.Error("%v", mErr)
		return int(auditerr.ExitCode(mErr))
	}

	graph, err := depmanager.ReadLockfile(lockPath, rootName)
	if err != nil {
		logger.Error("%v", err)
		return int(auditerr.ExitCode(err))
	}

	cacheDir := getEnv(c.Env, "RUF_AUDIT_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = filepath.Join(getEnv(c.Env, "CARGO_HOME"), "ruf-audit-cache")
	}

	snapshotPath := getEnv(c.Env, "RUF_AUDIT_METADATA_SNAPSHOT")
	metadata := &rufregistry.JSONSnapshotMetadataClient{Path: snapshotPath}
	sparse := &rufregistry.HTTPSparseIndexClient{BaseURL: getEnv(c.Env, "RUF_AUDIT_SPARSE_INDEX")}

	registry, err := rufregistry.New(cacheDir, metadata, sparse)
	if err != nil {
		logger.Error("%v", err)
		return int(auditerr.ExitCode(err))
	}
	defer registry.Close()

	pm := &depmanager.CargoPM{CargoPath: "cargo", ManifestDir: c.WorkingDir}
	mgr := depmanager.New(graph, local, registry, pm, lockPath, rootName)

	compilerVer, cvErr := strconv.Atoi(getEnv(c.Env, "RUF_AUDIT_COMPILER_VERSION"))
	if cvErr != nil || !rufstatus.InRange(compilerVer, 0, rufstatus.MaxCompilerVersion) {
		logger.Error("RUF_AUDIT_COMPILER_VERSION must be a compiler minor version in [0, %d)", rufstatus.MaxCompilerVersion)
		return int(auditerr.ExitUnexpected)
	}

	host := getEnv(c.Env, "RUF_AUDIT_HOST")
	if host == "" {
		host = "x86_64-unknown-linux-gnu"
	}
	toolchainHome := getEnv(c.Env, "RUF_AUDIT_TOOLCHAIN_HOME")

	scanner := &buildconfig.ProcessScanner{
		ScannerPath: getEnv(c.Env, "RUF_AUDIT_SCANNER"),
	}
	if toolchainHome != "" {
		scanner.ToolchainLibDir = filepath.Join(toolchainHome, "lib")
	}

	cfg := buildconfig.New(host, toolchainHome, compilerVer, rufstatus.DefaultTable(), scanner)
	cfg.SetQuickFix(*quickFix)
	cfg.SetNewerFix(*newerFix)

	wrapperPath, wErr := os.Executable()
	if wErr != nil {
		logger.Error("%v", wErr)
		return int(auditerr.ExitUnexpected)
	}

	nightly := getEnv(c.Env, "RUF_AUDIT_NIGHTLY_TOOLCHAIN")
	if nightly == "" {
		if pinned, ok := buildconfig.NightlyToolchain(compilerVer); ok {
			nightly = pinned
		}
	}

	ext := &extractor.Extractor{
		BuildToolPath:    "cargo",
		WrapperPath:      wrapperPath,
		NightlyToolchain: nightly,
	}

	e := &engine.Engine{
		Config:      cfg,
		Manager:     mgr,
		Extractor:   ext,
		Passthrough: passthrough,
		Log:         logger,
	}

	ctx := context.Background()

	if *extractOnly {
		rufs, err := ext.Extract(ctx, cfg, passthrough, logger)
		if err != nil {
			logger.Error("%v", err)
			return int(auditerr.ExitCode(err))
		}
		for crate, fs := range rufs {
			fmt.Fprintf(c.Stdout, "%s: %s\n", crate, strings.Join(fs, ", "))
		}
		return int(auditerr.ExitSuccess)
	}

	if *runTest {
		points := e.RunDiagnosticMatrix(ctx)
		for _, p := range points {
			if p.Err != nil {
				fmt.Fprintf(c.Stdout, "%s: %s (%v)\n", p.Name, p.Verdict, p.Err)
			} else {
				fmt.Fprintf(c.Stdout, "%s: %s\n", p.Name, p.Verdict)
			}
		}
		return int(auditerr.ExitSuccess)
	}

	code, err := e.Audit(ctx)
	if err != nil {
		logger.Error("%v", err)
	}
	return code
}

// splitPassthrough separates flag args from the build-tool arguments that
// follow a bare "--", which are forwarded verbatim.
func splitPassthrough(args []string) (flagArgs, passthrough []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

func resetUsage(fs *flag.FlagSet) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()

	logger := log.New(fs.Output(), "", 0)
	fs.Usage = func() {
		logger.Println("Usage: ruf-audit [flags] [-- build-tool-args...]")
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// getEnv returns the last instance of an environment variable, reading the
// Config's snapshot slice rather than os.Getenv directly so tests can
// supply a synthetic environment.
func getEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		v := env[i]
		kv := strings.SplitN(v, "=", 2)
		if kv[0] == key {
			if len(kv) > 1 {
				return kv[1]
			}
			return ""
		}
	}
	return ""
}
