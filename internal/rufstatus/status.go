// Package rufstatus is the static table mapping (feature, compiler minor
// version) to usability status. The compiler version range is [0, 64), so
// the "set of compiler versions" used throughout this package is
// represented as a 64-bit mask rather than a map or slice; membership,
// union and intersection are then single machine words, wrapped behind a
// small named type with methods instead of exposing the bit-twiddling at
// call sites.
package rufstatus

import "fmt"

// MaxCompilerVersion is the exclusive upper bound on compiler minor
// versions this table can represent.
const MaxCompilerVersion = 64

// Status is a tagged variant describing whether a feature can be enabled
// under a given compiler.
type Status uint8

const (
	// Unknown is returned for any (feature, version) pair the table has no
	// entry for, regardless of version.
	Unknown Status = iota
	Active
	Incomplete
	Accepted
	Removed
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Incomplete:
		return "incomplete"
	case Accepted:
		return "accepted"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// IsUsable reports whether a feature with this status can be enabled by the
// corresponding compiler. Active, Incomplete, and Accepted are usable;
// Unknown and Removed are not.
func (s Status) IsUsable() bool {
	switch s {
	case Active, Incomplete, Accepted:
		return true
	default:
		return false
	}
}

// CompilerSet is a set of compiler minor versions in [0, MaxCompilerVersion),
// represented as a bitmask.
type CompilerSet uint64

// AllCompilers is the set of every representable compiler version; an
// empty RUF set is usable everywhere, so its usable-compiler set is this.
const AllCompilers CompilerSet = (1 << MaxCompilerVersion) - 1

// NewCompilerSet builds a CompilerSet from individual version numbers,
// ignoring any out of [0, MaxCompilerVersion).
func NewCompilerSet(versions ...int) CompilerSet {
	var s CompilerSet
	for _, v := range versions {
		s = s.Add(v)
	}
	return s
}

// Add returns s with v included, if v is in range.
func (s CompilerSet) Add(v int) CompilerSet {
	if v < 0 || v >= MaxCompilerVersion {
		return s
	}
	return s | (1 << uint(v))
}

// Has reports whether v is a member of s.
func (s CompilerSet) Has(v int) bool {
	if v < 0 || v >= MaxCompilerVersion {
		return false
	}
	return s&(1<<uint(v)) != 0
}

// Intersect returns the intersection of s and other.
func (s CompilerSet) Intersect(other CompilerSet) CompilerSet {
	return s & other
}

// Empty reports whether s has no members.
func (s CompilerSet) Empty() bool {
	return s == 0
}

// Max returns the highest member of s and true, or 0 and false if s is empty.
func (s CompilerSet) Max() (int, bool) {
	if s == 0 {
		return 0, false
	}
	for v := MaxCompilerVersion - 1; v >= 0; v-- {
		if s.Has(v) {
			return v, true
		}
	}
	return 0, false
}

// Versions returns the sorted members of s.
func (s CompilerSet) Versions() []int {
	var out []int
	for v := 0; v < MaxCompilerVersion; v++ {
		if s.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

func (s CompilerSet) String() string {
	return fmt.Sprintf("%v", s.Versions())
}

// Table is an immutable map of feature name to its per-compiler-version
// status row. Implementers embed table content as static data; Table does
// no I/O.
type Table struct {
	rows map[string][MaxCompilerVersion]Status
}

// NewTable builds a Table from static row data. Rows not supplied for a
// feature default to Unknown at every version.
func NewTable(rows map[string][MaxCompilerVersion]Status) *Table {
	cp := make(map[string][MaxCompilerVersion]Status, len(rows))
	for k, v := range rows {
		cp[k] = v
	}
	return &Table{rows: cp}
}

// Status returns the status of feature at compiler version v. Unknown is
// returned for any feature not in the table, regardless of v.
func (t *Table) Status(feature string, v int) Status {
	if v < 0 || v >= MaxCompilerVersion {
		return Unknown
	}
	row, ok := t.rows[feature]
	if !ok {
		return Unknown
	}
	return row[v]
}

// UsableCompilers returns every compiler version for which feature is
// usable. Empty if the feature is unknown.
func (t *Table) UsableCompilers(feature string) CompilerSet {
	row, ok := t.rows[feature]
	if !ok {
		return 0
	}
	var s CompilerSet
	for v := 0; v < MaxCompilerVersion; v++ {
		if row[v].IsUsable() {
			s = s.Add(v)
		}
	}
	return s
}

// UsableCompilersFor returns the intersection of UsableCompilers(f) over
// every f in rufs. The empty set of RUFs is usable everywhere, so it
// returns AllCompilers when rufs is empty.
func (t *Table) UsableCompilersFor(rufs []string) CompilerSet {
	result := AllCompilers
	for _, f := range rufs {
		result = result.Intersect(t.UsableCompilers(f))
		if result.Empty() {
			return 0
		}
	}
	return result
}
