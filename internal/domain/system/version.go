package system

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// ErrInvalidVersion is returned when a string is not a semantic version.
var ErrInvalidVersion = errors.New("invalid version")

// ParseVersion parses a semantic version, tolerating surrounding whitespace.
func ParseVersion(s string) (semver.Version, error) {
	v, err := semver.Parse(strings.TrimSpace(s))
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w %q: %w", ErrInvalidVersion, s, err)
	}

	return v, nil
}

// ParseRunningVersion parses the installed OS version and drops build metadata,
// so that instrumented builds ("1.2.3+instrumented") compare like release builds.
func ParseRunningVersion(s string) (semver.Version, error) {
	v, err := ParseVersion(s)
	if err != nil {
		return v, err
	}

	v.Build = nil

	return v, nil
}
