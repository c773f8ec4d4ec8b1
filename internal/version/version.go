// Package version picks the next image version label from the labels that
// already exist in a gallery.
package version

import (
	"strconv"
	"strings"
)

// Initial is returned when no existing label parses.
const Initial = "1.0.0"

// Label is a major.minor.patch triple of non-negative integers.
type Label struct {
	Major, Minor, Patch int
}

// Parse accepts exactly three dot-separated runs of ASCII digits.
// Anything else, including pre-release suffixes and a leading "v", is rejected.
func Parse(s string) (Label, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Label{}, false
	}
	var nums [3]int
	for i, p := range parts {
		if p == "" || strings.IndexFunc(p, notDigit) >= 0 {
			return Label{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Label{}, false
		}
		nums[i] = n
	}
	return Label{Major: nums[0], Minor: nums[1], Patch: nums[2]}, true
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

// Compare orders labels by (major, minor, patch) numerically.
func (l Label) Compare(o Label) int {
	switch {
	case l.Major != o.Major:
		return cmpInt(l.Major, o.Major)
	case l.Minor != o.Minor:
		return cmpInt(l.Minor, o.Minor)
	default:
		return cmpInt(l.Patch, o.Patch)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (l Label) String() string {
	return strconv.Itoa(l.Major) + "." + strconv.Itoa(l.Minor) + "." + strconv.Itoa(l.Patch)
}

// Max returns the greatest parseable label in existing.
func Max(existing []string) (Label, bool) {
	var (
		best  Label
		found bool
	)
	for _, s := range existing {
		l, ok := Parse(s)
		if !ok {
			continue
		}
		if !found || l.Compare(best) > 0 {
			best, found = l, true
		}
	}
	return best, found
}

// Next returns the maximum existing label with its patch incremented, or
// Initial when nothing parses.
func Next(existing []string) string {
	best, ok := Max(existing)
	if !ok {
		return Initial
	}
	best.Patch++
	return best.String()
}
