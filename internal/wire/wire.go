// Package wire defines the JSON shapes and delimited line-framing used on
// process stdio between ruf-audit, its compiler-wrapper mode, and the
// scanner sibling process.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	cDelimiter = "CDelimiter::"
	cSuffix    = "::CDelimiter"
	fDelimiter = "FDelimiter::"
	fSuffix    = "::FDelimiter"
)

// CheckInfo is the structured record the scanner prints for a single crate:
// its name, the RUFs it declares, and the cfg set in force while compiling
// it. It round-trips through JSON by construction (plain struct tags).
type CheckInfo struct {
	CrateName string   `json:"crate_name"`
	UsedRufs  []string `json:"used_rufs"`
	Cfg       []string `json:"cfg"`
}

// EncodeCDelimiter formats ci as a single "CDelimiter::{...}::CDelimiter"
// stdout line.
func EncodeCDelimiter(ci CheckInfo) (string, error) {
	b, err := json.Marshal(ci)
	if err != nil {
		return "", errors.Wrap(err, "marshal CheckInfo")
	}
	return cDelimiter + string(b) + cSuffix, nil
}

// DecodeCDelimiter parses a "CDelimiter::{...}::CDelimiter" line. It returns
// ok=false if line does not carry the delimiter (the caller should ignore
// such lines; they are ordinary build-tool chatter).
func DecodeCDelimiter(line string) (ci CheckInfo, ok bool, err error) {
	body, ok := cutDelimited(line, cDelimiter, cSuffix)
	if !ok {
		return CheckInfo{}, false, nil
	}
	if err := json.Unmarshal([]byte(body), &ci); err != nil {
		return CheckInfo{}, true, errors.Wrapf(err, "unmarshal CheckInfo from %q", line)
	}
	return ci, true, nil
}

// EncodeFDelimiter formats a list of RUF names as a single
// "FDelimiter::[...]::FDelimiter" stdout line, emitted by the scanner in
// cfg-expansion mode.
func EncodeFDelimiter(rufs []string) (string, error) {
	b, err := json.Marshal(rufs)
	if err != nil {
		return "", errors.Wrap(err, "marshal FDelimiter payload")
	}
	return fDelimiter + string(b) + fSuffix, nil
}

// DecodeFDelimiter parses a "FDelimiter::[...]::FDelimiter" line.
func DecodeFDelimiter(line string) (rufs []string, ok bool, err error) {
	body, ok := cutDelimited(line, fDelimiter, fSuffix)
	if !ok {
		return nil, false, nil
	}
	if err := json.Unmarshal([]byte(body), &rufs); err != nil {
		return nil, true, errors.Wrapf(err, "unmarshal FDelimiter payload from %q", line)
	}
	return rufs, true, nil
}

func cutDelimited(line, prefix, suffix string) (string, bool) {
	start := strings.Index(line, prefix)
	if start < 0 {
		return "", false
	}
	rest := line[start+len(prefix):]
	end := strings.LastIndex(rest, suffix)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// ConditionalRuf is a RUF declared by a crate, optionally gated behind a
// cfg predicate. An absent Cond means the RUF is declared unconditionally.
type ConditionalRuf struct {
	Cond    string `json:"cond,omitempty"`
	Feature string `json:"feature"`
}

func (c ConditionalRuf) String() string {
	if c.Cond == "" {
		return c.Feature
	}
	return fmt.Sprintf("%s (if %s)", c.Feature, c.Cond)
}

// CondRufs is the ordered sequence of conditional RUFs declared by one
// (crate, version).
type CondRufs []ConditionalRuf

// UsedRufs is an ordered sequence of feature names; semantics are set-like
// (duplicates tolerated, order does not affect meaning).
type UsedRufs []string

// Set returns the de-duplicated set of feature names.
func (u UsedRufs) Set() map[string]struct{} {
	m := make(map[string]struct{}, len(u))
	for _, f := range u {
		m[f] = struct{}{}
	}
	return m
}
