package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is overridden at build time via ldflags, e.g.
//
//	go build -ldflags "-X github.com/hrygo/dagflow/internal/version.Version=v0.3.0"
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// GitBranch is the git branch at build time.
var GitBranch = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

// IsGreaterOrEqual reports whether version is >= target under semver
// ordering, used to gate workflow documents that declare a minimum
// engine version in their settings block.
func IsGreaterOrEqual(version, target string) bool {
	return semver.Compare(normalize(version), normalize(target)) >= 0
}

func normalize(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

// String returns the version with a short commit suffix when known.
func String() string {
	v := Version
	if GitCommit != "" && GitCommit != "unknown" {
		commit := GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		v = fmt.Sprintf("%s-%s", v, commit)
	}
	return v
}

// StringFull returns the complete build metadata line.
func StringFull() string {
	parts := []string{fmt.Sprintf("Version=%s", Version)}
	if GitCommit != "" && GitCommit != "unknown" {
		commit := GitCommit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		parts = append(parts, fmt.Sprintf("Commit=%s", commit))
	}
	if GitBranch != "" && GitBranch != "unknown" {
		parts = append(parts, fmt.Sprintf("Branch=%s", GitBranch))
	}
	if BuildTime != "" && BuildTime != "unknown" {
		parts = append(parts, fmt.Sprintf("BuildTime=%s", BuildTime))
	}
	return strings.Join(parts, " ")
}
