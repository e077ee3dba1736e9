// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version information of the utilities provided in
// the repository.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
)

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// semverRE is a regular expression used to parse a semantic version string into
// its constituent parts.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var (
	// Version is the application version per the semantic versioning 2.0.0
	// spec (https://semver.org/).
	//
	// It may be overridden during the build process with:
	// '-ldflags "-X github.com/decred/versionbits/internal/version.Version=fullsemver"'
	//
	// It MUST be a full semantic version or the package will panic at
	// runtime.
	Version = "0.1.0-pre"

	// These fields are set via init by parsing Version.
	Major         uint
	Minor         uint
	Patch         uint
	PreRelease    string
	BuildMetadata string
)

// SemVer houses the components of a parsed semantic version.
type SemVer struct {
	Major, Minor, Patch uint
	PreRelease          string
	BuildMetadata       string
}

// checkSemString returns an error if the passed string contains characters that
// are not in the semantic alphabet.
func checkSemString(s, fieldName string) error {
	for _, r := range s {
		if !strings.ContainsRune(semanticAlphabet, r) {
			return fmt.Errorf("malformed semver %s: %q invalid", fieldName, r)
		}
	}
	return nil
}

// ParseSemVer parses the provided semantic version string.
func ParseSemVer(s string) (SemVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return SemVer{}, fmt.Errorf("malformed version string %q: does not "+
			"conform to semver specification", s)
	}

	var nums [3]uint
	for i, name := range []string{"major", "minor", "patch"} {
		val, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return SemVer{}, fmt.Errorf("malformed semver %s: %w", name, err)
		}
		nums[i] = uint(val)
	}
	if err := checkSemString(m[4], "pre-release"); err != nil {
		return SemVer{}, err
	}
	if err := checkSemString(m[5], "buildmetadata"); err != nil {
		return SemVer{}, err
	}

	return SemVer{
		Major:         nums[0],
		Minor:         nums[1],
		Patch:         nums[2],
		PreRelease:    m[4],
		BuildMetadata: m[5],
	}, nil
}

func init() {
	v, err := ParseSemVer(Version)
	if err != nil {
		panic(err)
	}
	Major, Minor, Patch = v.Major, v.Minor, v.Patch
	PreRelease, BuildMetadata = v.PreRelease, v.BuildMetadata
}

// vcsCommitID returns the abbreviated commit the binary was built from when it
// is known.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var vcs, revision string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs":
			vcs = bs.Value
		case "vcs.revision":
			revision = bs.Value
		}
	}
	if vcs == "" {
		return ""
	}
	if vcs == "git" && len(revision) > 9 {
		revision = revision[:9]
	}
	return revision
}

// String returns the application version as a properly formed string.  The
// commit the binary was built from is appended to the build metadata when the
// version does not already carry any.
func String() string {
	if BuildMetadata != "" {
		return Version
	}
	commit := NormalizeString(vcsCommitID())
	if commit == "" {
		return Version
	}
	return Version + "+" + commit
}

// NormalizeString returns the passed string stripped of all characters which
// are not valid for pre-release and build metadata strings.
func NormalizeString(str string) string {
	var result strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
