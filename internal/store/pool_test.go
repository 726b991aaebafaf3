package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/db"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/shop?sslmode=disable", MigrateURL("postgres://u:p@localhost:5432/shop?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/shop", MigrateURL("postgresql://localhost/shop"))
	require.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := db.Migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	require.Equal(t, ups, downs)
}
