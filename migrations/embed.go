// Package migrations embeds SQL migration files into the binary.
//
// Each driver has its own directory of goose migrations (sqlite/, postgres/)
// so column types can follow the dialect while table shapes stay identical.
package migrations

import (
	"embed"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}
