// Package semver checks wallet versions against a minimum requirement.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:compat"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a constraint is a major-only specifier (e.g., "3").
func IsMajorOnly(constraint string) bool {
	return majorOnlyRegex.MatchString(constraint)
}

// ValidateConstraint reports whether constraint can be checked. An empty constraint is valid.
func ValidateConstraint(constraint string) error {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || IsMajorOnly(constraint) {
		return nil
	}
	if _, err := masterminds.NewConstraint(constraint); err != nil {
		return fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}
	return nil
}

// CheckCompatible reports whether version satisfies constraint.
//
// Supported constraints:
//   - ""                 (anything)
//   - 0                  (major only)
//   - 0.3.0              (bare version, read as >=0.3.0)
//   - ^0.3.0, ~0.3.0     (caret and tilde ranges)
//   - >=0.3.0 <1.0.0     (comparison ranges)
func CheckCompatible(version, constraint string) (bool, error) {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return true, nil
	}

	sv, err := masterminds.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false, fmt.Errorf("%s - wallet reported unparsable version %q: %w", logPrefix, version, err)
	}

	if IsMajorOnly(constraint) {
		major, _ := strconv.ParseUint(constraint, 10, 64)
		return sv.Major() == major, nil
	}

	if floor, err := masterminds.StrictNewVersion(constraint); err == nil {
		return !sv.LessThan(floor), nil
	}

	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}
	return c.Check(sv), nil
}
