package index

import (
	"cmp"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/kiln/internal/core/domain"
)

// versionRegex accepts releases of up to four segments with an optional pre-release and post-release,
// e.g. 1.0, 1.2.3.4, 1.0rc1, 2.0.post1 or the semver spelling 3.1.0-rc1.
var versionRegex = regexp.MustCompile(
	`(?i)^v?(\d+(?:\.\d+){0,3})` +
		`(?:[-_.]?(alpha|beta|preview|pre|rc|a|b|c)[-_.]?(\d+)?)?` +
		`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d+)?)?$`,
)

var prePhases = map[string]string{
	"a": "a", "alpha": "a",
	"b": "b", "beta": "b",
	"c": "rc", "rc": "rc", "pre": "rc", "preview": "rc",
}

// version is a package version normalized onto semver. Pre-releases become the semver pre-release
// (a.N, b.N, rc.N) and post-releases the build metadata (post.N). The fourth release segment and the
// post number take part in ordering, which semver alone would ignore.
type version struct {
	sem      *semver.Version
	fourth   uint64
	post     int64
	segments int
}

func parseVersion(raw string) (*version, error) {
	m := versionRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil, domain.Tagged(domain.ErrUnsupportedVersion, "version", raw)
	}
	release, ok := parseRelease(m[1])
	if !ok {
		return nil, domain.Tagged(domain.ErrUnsupportedVersion, "version", raw)
	}
	nums := make([]uint64, 4)
	copy(nums, release)

	pre := ""
	if m[2] != "" {
		n, ok := number(m[3])
		if !ok {
			return nil, domain.Tagged(domain.ErrUnsupportedVersion, "version", raw)
		}
		pre = prePhases[strings.ToLower(m[2])] + "." + strconv.FormatUint(n, 10)
	}

	v := &version{fourth: nums[3], post: -1, segments: len(release)}
	meta := ""
	if m[4] != "" || m[5] != "" {
		n, ok := number(m[4] + m[6])
		if !ok || n > math.MaxInt64 {
			return nil, domain.Tagged(domain.ErrUnsupportedVersion, "version", raw)
		}
		v.post = int64(n)
		meta = "post." + strconv.FormatUint(n, 10)
	}
	v.sem = semver.New(nums[0], nums[1], nums[2], pre, meta)
	return v, nil
}

// number parses an optional numeric suffix; an omitted number is 0.
func number(s string) (uint64, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

// parseRelease reads dotted release segments such as "3.1" or "1.2.3.4".
func parseRelease(s string) ([]uint64, bool) {
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return nil, false
	}
	out := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func (v *version) release() []uint64 {
	return []uint64{v.sem.Major(), v.sem.Minor(), v.sem.Patch(), v.fourth}
}

func (v *version) prerelease() string {
	return v.sem.Prerelease()
}

// compare orders by release, then pre-release (a final release sorts after its pre-releases), then post-release.
func (v *version) compare(o *version) int {
	if c := v.compareRelease(o); c != 0 {
		return c
	}
	if c := comparePre(v.prerelease(), o.prerelease()); c != 0 {
		return c
	}
	return cmp.Compare(v.post, o.post)
}

func (v *version) compareRelease(o *version) int {
	a, b := v.release(), o.release()
	for i := range a {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func comparePre(a, b string) int {
	return semver.New(0, 0, 0, a, "").Compare(semver.New(0, 0, 0, b, ""))
}

// hasReleasePrefix reports whether the release segments of v start with prefix, e.g. 3.1 for 3.1.4.
func (v *version) hasReleasePrefix(prefix []uint64) bool {
	release := v.release()
	if len(prefix) > len(release) {
		return false
	}
	for i, n := range prefix {
		if release[i] != n {
			return false
		}
	}
	return true
}

// candidate is one version directory of an indexed package.
type candidate struct {
	raw     string
	version *version
}

// matches reports whether c satisfies every constraint.
func (c candidate) matches(constraints []domain.Constraint) bool {
	for _, con := range constraints {
		if !c.satisfies(con) {
			return false
		}
	}
	return true
}

func (c candidate) satisfies(con domain.Constraint) bool {
	if con.Op == domain.OpArbitrary {
		return c.raw == con.Version
	}

	if prefix, ok := strings.CutSuffix(con.Version, ".*"); ok {
		release, ok := parseRelease(prefix)
		match := ok && c.version.hasReleasePrefix(release)
		if con.Op == domain.OpNotEqual {
			return !match
		}
		return match
	}

	want, err := parseVersion(con.Version)
	if err != nil {
		return false
	}
	order := c.version.compare(want)

	switch con.Op {
	case domain.OpEqual:
		return order == 0
	case domain.OpNotEqual:
		return order != 0
	case domain.OpLessEq:
		return order <= 0
	case domain.OpGreaterEq:
		return order >= 0
	case domain.OpLess:
		// <V never admits a pre-release of V itself.
		if want.prerelease() == "" && c.version.prerelease() != "" && c.version.compareRelease(want) == 0 {
			return false
		}
		return order < 0
	case domain.OpGreater:
		// >V never admits a post-release of V unless V is one.
		if want.post < 0 && c.version.post >= 0 && c.version.compareRelease(want) == 0 &&
			c.version.prerelease() == want.prerelease() {
			return false
		}
		return order > 0
	case domain.OpCompatible:
		if want.segments < 2 || order < 0 {
			return false
		}
		return c.version.hasReleasePrefix(want.release()[:want.segments-1])
	default:
		return false
	}
}

// checkConstraints rejects constraint versions that cannot be ordered.
func checkConstraints(name string, constraints []domain.Constraint) error {
	for _, con := range constraints {
		if con.Op == domain.OpArbitrary {
			continue
		}
		if prefix, ok := strings.CutSuffix(con.Version, ".*"); ok {
			if _, ok := parseRelease(prefix); !ok {
				return domain.Tagged(domain.ErrUnsupportedVersion, "package", name, "version", con.Version)
			}
			continue
		}
		if _, err := parseVersion(con.Version); err != nil {
			return domain.Tagged(domain.ErrUnsupportedVersion, "package", name, "version", con.Version)
		}
	}
	return nil
}

// allowsPrerelease reports whether any constraint names a pre-release explicitly.
func allowsPrerelease(constraints []domain.Constraint) bool {
	for _, con := range constraints {
		if con.Op == domain.OpArbitrary {
			continue
		}
		if v, err := parseVersion(con.Version); err == nil && v.prerelease() != "" {
			return true
		}
	}
	return false
}
