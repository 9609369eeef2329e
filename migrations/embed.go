// Package migrations bundles the SQL schema and seed files into the binary
// so deployments do not need the source tree on disk.
package migrations

import "embed"

//go:embed sql/*.sql seeds/*.sql
var Files embed.FS

const (
	// SQLDir is the path of the versioned migrations inside Files.
	SQLDir = "sql"
	// SeedsDir is the path of the seed files inside Files.
	SeedsDir = "seeds"
)
