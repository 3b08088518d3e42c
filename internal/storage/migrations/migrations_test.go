package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var exampleMigration = Migration{
	Version:     1,
	Description: "Add example test table",
	Up: `
		CREATE TABLE IF NOT EXISTS test_table (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`,
	Down: `
		DROP TABLE IF EXISTS test_table
	`,
}

var indexMigration = Migration{
	Version:     2,
	Description: "Index test_table.name",
	Up:          `CREATE UNIQUE INDEX IF NOT EXISTS idx_test_table_name ON test_table(name)`,
	Down:        `DROP INDEX IF EXISTS idx_test_table_name`,
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	manager := NewManager(exampleMigration)
	require.NoError(t, manager.ApplySQLite(ctx, db))

	version, err := SQLiteVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (1, 'test')")
	require.NoError(t, err, "test table not created")

	require.NoError(t, manager.RollbackSQLite(ctx, db))

	version, err = SQLiteVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (2, 'test')")
	assert.Error(t, err, "test table should have been dropped")

	assert.Error(t, manager.RollbackSQLite(ctx, db), "nothing left to roll back")
}

func TestSQLiteMigrationsAreIncremental(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, NewManager(exampleMigration).ApplySQLite(ctx, db))

	// A later binary registers one more migration; only that one runs.
	manager := NewManager(indexMigration, exampleMigration)
	require.NoError(t, manager.ApplySQLite(ctx, db))
	require.NoError(t, manager.ApplySQLite(ctx, db))

	version, err := SQLiteVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, 2, manager.Latest())

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (1, 'dup')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (2, 'dup')")
	assert.Error(t, err, "unique index from migration 2 should be in place")
}

func TestMigrationOrdering(t *testing.T) {
	manager := NewManager()

	manager.Register(Migration{Version: 3, Description: "Third"})
	manager.Register(Migration{Version: 1, Description: "First"})
	manager.Register(Migration{Version: 2, Description: "Second"})

	manager.sortMigrations()

	require.Len(t, manager.migrations, 3)
	for i, migration := range manager.migrations {
		assert.Equal(t, i+1, migration.Version)
	}
}
