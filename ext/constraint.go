package ext

import (
	"errors"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrEmptyIntersection is returned by Constraint.Intersect when no version can
// satisfy both constraints.
var ErrEmptyIntersection = errors.New("constraints do not intersect")

// Constraint is a semver range expression, as used by directives and
// requirements. The zero value accepts any version.
type Constraint struct {
	raw string
	c   *semver.Constraints
}

// AnyVersion is the constraint that accepts every version.
const AnyVersion = "*"

// ParseConstraint parses a semver range expression. Comparators =, !=, >, >=,
// <, <=, caret and tilde ranges, "," (and) and "||" (or) are supported. An
// empty expression means any version.
func ParseConstraint(expr string) (Constraint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == AnyVersion {
		return Constraint{}, nil
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{raw: expr, c: c}, nil
}

// MustParseConstraint is like ParseConstraint but panics on errors.
func MustParseConstraint(expr string) Constraint {
	c, err := ParseConstraint(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// IsAny reports whether the constraint accepts every version.
func (c Constraint) IsAny() bool {
	return c.c == nil
}

func (c Constraint) String() string {
	if c.IsAny() {
		return AnyVersion
	}
	return c.raw
}

// MarshalText implements encoding.TextMarshaler.
func (c Constraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Constraint) UnmarshalText(text []byte) error {
	parsed, err := ParseConstraint(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Check reports whether v satisfies the constraint.
func (c Constraint) Check(v *semver.Version) bool {
	if c.IsAny() {
		return true
	}
	return c.c.Check(v)
}

// Intersect returns the constraint satisfied exactly by the versions that
// satisfy both c and other. ErrEmptyIntersection is returned when that set is
// provably empty.
func (c Constraint) Intersect(other Constraint) (Constraint, error) {
	switch {
	case c.IsAny():
		return other, nil
	case other.IsAny(), c.raw == other.raw:
		return c, nil
	}

	// (a1 || a2) && (b1 || b2) == (a1 && b1) || (a1 && b2) || ...
	var branches []string
	for _, a := range splitOr(c.raw) {
		for _, b := range splitOr(other.raw) {
			branch := a + ", " + b
			if branchSatisfiable(branch) {
				branches = append(branches, branch)
			}
		}
	}
	if len(branches) == 0 {
		return Constraint{}, ErrEmptyIntersection
	}
	return ParseConstraint(strings.Join(branches, " || "))
}

// Satisfiable reports whether some version could satisfy the constraint. It
// only returns false when that is certain, e.g. for ">=2.0.0, <1.0.0".
func (c Constraint) Satisfiable() bool {
	if c.IsAny() {
		return true
	}
	for _, branch := range splitOr(c.raw) {
		if branchSatisfiable(branch) {
			return true
		}
	}
	return false
}

func splitOr(expr string) []string {
	parts := strings.Split(expr, "||")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

//nolint:gochecknoglobals
var reComparator = regexp.MustCompile(`(!=|>=|=>|<=|=<|==|=|>|<|\^|~>|~)?\s*v?([0-9A-Za-z*][0-9A-Za-z.*+-]*)`)

type bound struct {
	v    *semver.Version
	incl bool
}

// branchSatisfiable evaluates an and-only expression as an interval. Terms it
// cannot reason about (wildcards, partial versions, hyphen ranges) are treated
// as unbounded, so a false result is always correct.
func branchSatisfiable(branch string) bool {
	if strings.Contains(branch, " - ") {
		return true
	}

	var lo, hi bound
	var excluded []*semver.Version

	for _, m := range reComparator.FindAllStringSubmatch(branch, -1) {
		op, text := m[1], m[2]
		if strings.Count(text, ".") < 2 || strings.ContainsAny(text, "xX*") {
			continue
		}
		v, err := semver.NewVersion(text)
		if err != nil {
			continue
		}

		switch op {
		case "", "=", "==":
			lo = tighterLow(lo, bound{v, true})
			hi = tighterHigh(hi, bound{v, true})
		case "!=":
			excluded = append(excluded, v)
		case ">":
			lo = tighterLow(lo, bound{v, false})
		case ">=", "=>":
			lo = tighterLow(lo, bound{v, true})
		case "<":
			hi = tighterHigh(hi, bound{v, false})
		case "<=", "=<":
			hi = tighterHigh(hi, bound{v, true})
		case "^":
			lo = tighterLow(lo, bound{v, true})
			next := v.IncMajor()
			if v.Major() == 0 {
				next = v.IncMinor()
			}
			hi = tighterHigh(hi, bound{&next, false})
		case "~", "~>":
			lo = tighterLow(lo, bound{v, true})
			next := v.IncMinor()
			hi = tighterHigh(hi, bound{&next, false})
		}
	}

	if lo.v == nil || hi.v == nil {
		return true
	}
	cmp := lo.v.Compare(hi.v)
	if cmp > 0 || (cmp == 0 && !(lo.incl && hi.incl)) {
		return false
	}
	if cmp == 0 {
		for _, ex := range excluded {
			if ex.Equal(lo.v) {
				return false
			}
		}
	}
	return true
}

func tighterLow(cur, b bound) bound {
	if cur.v == nil {
		return b
	}
	switch cmp := b.v.Compare(cur.v); {
	case cmp > 0:
		return b
	case cmp == 0 && !b.incl:
		return b
	default:
		return cur
	}
}

func tighterHigh(cur, b bound) bound {
	if cur.v == nil {
		return b
	}
	switch cmp := b.v.Compare(cur.v); {
	case cmp < 0:
		return b
	case cmp == 0 && !b.incl:
		return b
	default:
		return cur
	}
}
