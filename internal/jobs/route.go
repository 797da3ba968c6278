package jobs

import (
	"strings"
)

// Route is a parsed resource path such as /api/images/{id}/versions/{vid}/pin.
type Route struct {
	ID string
	// Rest holds the segments after the ID.
	Rest []string
}

// Action returns the segment after the ID, or "" for the resource itself.
func (r Route) Action() string {
	if len(r.Rest) == 0 {
		return ""
	}
	return r.Rest[0]
}

// ParseRoute splits a path under apiPrefix (e.g. "/api/images/") into the
// resource ID and the remaining segments. An empty ID or an empty segment
// makes the path invalid.
func ParseRoute(path, apiPrefix string) (Route, bool) {
	if !strings.HasPrefix(path, apiPrefix) {
		return Route{}, false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(path, apiPrefix), "/")
	if rest == "" {
		return Route{}, false
	}
	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return Route{}, false
		}
	}
	return Route{ID: parts[0], Rest: parts[1:]}, true
}

// CheckOwnership reports whether the caller's project ID matches the
// resource's project. An empty caller ID never matches.
func CheckOwnership(callerProjectID, resourceProjectID string) bool {
	return callerProjectID != "" && callerProjectID == resourceProjectID
}
