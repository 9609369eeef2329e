package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric labels stay bounded.
// Only known parameterized routes are rewritten; everything else passes through.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	rewrite := func(parts ...string) string {
		return "/" + strings.Join(parts, "/")
	}
	if len(segments) >= 3 && segments[0] == "v1" {
		switch segments[1] {
		case "users", "roles", "customers", "invoices", "payments", "role-requests":
			switch len(segments) {
			case 3:
				return rewrite(segments[0], segments[1], ":id")
			case 4:
				return rewrite(segments[0], segments[1], ":id", segments[3])
			}
		}
	}
	return path
}
