package formula

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// CompareVersions orders two release versions, returning -1, 0 or 1.
// Versions that do not parse as dotted numbers fall back to string order
// and sort before any parseable version.
func CompareVersions(a, b string) int {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA != nil && errB == nil:
		return -1
	case errA == nil && errB != nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
