// Package semver implements npm-style semantic version and range handling.
//
// Version precedence follows SemVer 2.0; range literals follow the npm
// grammar (caret, tilde, hyphen, x-ranges, disjunctions with ||).
package semver

import (
	"strconv"
	"strings"

	xsemver "golang.org/x/mod/semver"
)

// Version is a parsed semantic version.
type Version struct {
	Major, Minor, Patch int
	// Pre holds the dot-separated prerelease identifiers, empty for a
	// release version.
	Pre []string

	canon string
	orig  string
}

// Parse parses a version string, accepting an optional leading "v" or "=".
// It returns nil when the string is not a valid semantic version.
func Parse(s string) *Version {
	orig := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return nil
	}

	// Build metadata does not participate in precedence.
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}

	core := s
	var pre string
	if i := strings.IndexByte(s, '-'); i >= 0 {
		core = s[:i]
		pre = s[i+1:]
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return nil
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil
		}
		nums[i] = n
	}

	v := &Version{
		Major: nums[0],
		Minor: nums[1],
		Patch: nums[2],
		orig:  orig,
	}

	if pre != "" {
		v.Pre = strings.Split(pre, ".")
	}

	v.canon = canonical(v)
	if !xsemver.IsValid(v.canon) {
		return nil
	}

	return v
}

// canonical renders the "vX.Y.Z[-pre]" form consumed by x/mod/semver.
func canonical(v *Version) string {
	var b strings.Builder
	b.WriteByte('v')
	b.WriteString(strconv.Itoa(v.Major))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.Minor))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.Patch))
	if len(v.Pre) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Pre, "."))
	}
	return b.String()
}

// String returns the version without any leading "v".
func (v *Version) String() string {
	return strings.TrimPrefix(v.canon, "v")
}

// IsPrerelease reports whether the version carries prerelease identifiers.
func (v *Version) IsPrerelease() bool {
	return len(v.Pre) > 0
}

// sameCore reports whether two versions share the major.minor.patch triple.
func (v *Version) sameCore(o *Version) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

// Compare returns -1, 0, or 1 depending on whether a is lower than, equal
// to, or higher than b in SemVer precedence order.
func Compare(a, b *Version) int {
	return xsemver.Compare(a.canon, b.canon)
}

// MaxSatisfying returns the highest non-prerelease version in the list that
// satisfies the range. Prerelease versions are considered only when the
// range explicitly mentions a prerelease with the same core triple. Returns
// the empty string when nothing satisfies.
func MaxSatisfying(versions []string, rangeStr string) string {
	r := ParseRange(rangeStr)

	var best *Version
	var bestStr string
	for _, s := range versions {
		v := Parse(s)
		if v == nil {
			continue
		}
		if v.IsPrerelease() && r.any {
			continue
		}
		if !r.Test(v) {
			continue
		}
		if best == nil || Compare(v, best) > 0 {
			best = v
			bestStr = s
		}
	}
	return bestStr
}

// Satisfies reports whether the version string satisfies the range string.
// Invalid versions never satisfy anything.
func Satisfies(version, rangeStr string) bool {
	v := Parse(version)
	if v == nil {
		return false
	}
	return ParseRange(rangeStr).Test(v)
}
