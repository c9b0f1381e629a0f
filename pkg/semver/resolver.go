package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// Constraint is a compiled version range. A major-only range ("2") matches
// every version with that major; an exact version matches only itself.
type Constraint struct {
	raw         string
	constraints *masterminds.Constraints
}

// NewConstraint compiles a range string.
func NewConstraint(rangeStr string) (*Constraint, error) {
	expr := rangeStr
	if IsMajorOnly(rangeStr) {
		expr = rangeStr + ".x"
	}
	c, err := masterminds.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version range %q: %w", resolverLogPrefix, rangeStr, err)
	}
	return &Constraint{raw: rangeStr, constraints: c}, nil
}

// Check reports whether version satisfies the constraint. Unparseable
// versions never match.
func (c *Constraint) Check(version string) bool {
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	return c.constraints.Check(v)
}

func (c *Constraint) String() string {
	return c.raw
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	c, err := NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return c.Check(version)
}
