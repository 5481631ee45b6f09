// Package version models PDF format versions and the policy that decides
// which version a document may be moved to.
package version

import (
	"fmt"
	"strings"

	"github.com/digitorus/pdfmu/operation"
)

// Version is a PDF format revision encoded as an ordered tier.
type Version int

const (
	Invalid Version = iota
	V1_0
	V1_1
	V1_2
	V1_3
	V1_4
	V1_5
	V1_6
	V1_7
	V2_0
)

// Default is the version requested when none is given.
const Default = V1_6

var names = [...]string{
	Invalid: "",
	V1_0:    "1.0",
	V1_1:    "1.1",
	V1_2:    "1.2",
	V1_3:    "1.3",
	V1_4:    "1.4",
	V1_5:    "1.5",
	V1_6:    "1.6",
	V1_7:    "1.7",
	V2_0:    "2.0",
}

// Parse reads a version literal such as "1.6". A leading "/" (PDF name
// syntax) or "PDF-" prefix is accepted.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimPrefix(s, "PDF-")
	for v := V1_0; v <= V2_0; v++ {
		if names[v] == s {
			return v, nil
		}
	}
	return Invalid, fmt.Errorf("unknown PDF version %q", s)
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	if v <= Invalid || v > V2_0 {
		return "invalid"
	}
	return names[v]
}

// Valid reports whether v is a known version.
func (v Version) Valid() bool {
	return v > Invalid && v <= V2_0
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(other Version) int {
	switch {
	case v < other:
		return -1
	case v > other:
		return 1
	}
	return 0
}

// Less reports whether v is lower than other.
func (v Version) Less(other Version) bool {
	return v < other
}

// Max returns the higher of the two versions.
func Max(a, b Version) Version {
	if a > b {
		return a
	}
	return b
}

// ResolveTarget returns requested unless it would lower current and
// allowLower is not set.
func ResolveTarget(current, requested Version, allowLower bool) (Version, error) {
	if requested.Less(current) && !allowLower {
		return Invalid, operation.New(operation.VersionWouldLower, nil,
			operation.A("inputVersion", current.String()),
			operation.A("requestedVersion", requested.String()))
	}
	return requested, nil
}

// Plan decides the version of the output document. With onlyIfLower a
// document that is already at or above the requested version is left
// unchanged, which is reported by change being false.
func Plan(current, requested Version, allowLower, onlyIfLower bool) (target Version, change bool, err error) {
	if onlyIfLower && current.Compare(requested) >= 0 {
		return current, false, nil
	}
	target, err = ResolveTarget(current, requested, allowLower)
	if err != nil {
		return Invalid, false, err
	}
	return target, true, nil
}
