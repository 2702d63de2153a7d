package finalize

import (
	"regexp"
	"strconv"
	"strings"
)

var tagPrefixRegex = regexp.MustCompile(`(?i)^(?:v|release-|jenkins-.*-)`)

type parsedVersion struct {
	raw        string
	major      int
	minor      int
	patch      int
	prerelease string
	ok         bool
}

func parseSemverish(tag string) parsedVersion {
	stripped := tagPrefixRegex.ReplaceAllString(tag, "")
	core := stripped
	var prerelease string
	if idx := strings.IndexAny(stripped, "-+"); idx != -1 {
		core = stripped[:idx]
		prerelease = stripped[idx+1:]
	}
	parts := strings.Split(core, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return parsedVersion{raw: tag}
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return parsedVersion{raw: tag}
		}
		nums[i] = n
	}
	return parsedVersion{raw: tag, major: nums[0], minor: nums[1], patch: nums[2], prerelease: prerelease, ok: true}
}

func (v parsedVersion) less(o parsedVersion) bool {
	if v.major != o.major {
		return v.major < o.major
	}
	if v.minor != o.minor {
		return v.minor < o.minor
	}
	if v.patch != o.patch {
		return v.patch < o.patch
	}
	if v.prerelease == "" && o.prerelease != "" {
		return false
	}
	if v.prerelease != "" && o.prerelease == "" {
		return true
	}
	return v.prerelease < o.prerelease
}

// PickVersion selects the largest semver-parseable tag from tags, after
// stripping common prefixes, preferring non-prereleases over prereleases,
// per spec.md 4.10 step 5. Returns ("", false) when no tag parses.
func PickVersion(tags []string) (string, bool) {
	var best parsedVersion
	found := false

	for _, t := range tags {
		pv := parseSemverish(t)
		if !pv.ok {
			continue
		}
		if !found {
			best, found = pv, true
			continue
		}
		bestIsPrerelease := best.prerelease != ""
		candIsPrerelease := pv.prerelease != ""
		switch {
		case bestIsPrerelease && !candIsPrerelease:
			best = pv
		case !bestIsPrerelease && candIsPrerelease:
			// keep best, a non-prerelease always beats a prerelease
		case best.less(pv):
			best = pv
		}
	}

	if !found {
		return "", false
	}
	return best.raw, true
}
