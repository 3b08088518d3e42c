package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverDatabaseInDir_CurrentDirOnly(t *testing.T) {
	// tmpRoot/parent/.evalflow/parent.db, tmpRoot/parent/child (no .evalflow)
	tmpRoot := t.TempDir()
	parentDir := filepath.Join(tmpRoot, "parent")
	childDir := filepath.Join(parentDir, "child")

	require.NoError(t, os.MkdirAll(filepath.Join(parentDir, DataDir), 0755))
	parentDB := filepath.Join(parentDir, DataDir, "parent.db")
	require.NoError(t, os.WriteFile(parentDB, []byte(""), 0644))
	require.NoError(t, os.MkdirAll(childDir, 0755))

	_, err := discoverDatabaseInDir(childDir)
	assert.Error(t, err, "child directory must not pick up the parent's database")

	dbPath, err := discoverDatabaseInDir(parentDir)
	require.NoError(t, err)
	assert.Equal(t, parentDB, dbPath)
}

func TestDiscoverDatabase_EnvOverride(t *testing.T) {
	t.Setenv("EVALFLOW_DB_PATH", ":memory:")
	path, err := DiscoverDatabase()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)

	t.Setenv("EVALFLOW_DB_PATH", "/tmp/evalflow-test.db")
	path, err = DiscoverDatabase()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/evalflow-test.db", path)
}

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot("/srv/app/.evalflow/evalflow.db")
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", root)

	_, err = GetProjectRoot("/srv/app/data/evalflow.db")
	assert.Error(t, err)
}

func TestInitProject(t *testing.T) {
	dir := t.TempDir()

	dbPath, err := InitProject(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DataDir, "evalflow.db"), dbPath)

	// Once the file exists, a second init refuses to clobber it.
	require.NoError(t, os.WriteFile(dbPath, []byte(""), 0644))
	_, err = InitProject(dir, "evalflow")
	assert.Error(t, err)

	_, err = InitProject(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}

func TestServerLock(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, DataDir, "evalflow.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0755))

	lockPath, err := AcquireServerLock(dbPath, ":8080")
	require.NoError(t, err)

	// The current process is alive, so a second acquisition fails.
	_, err = AcquireServerLock(dbPath, ":8081")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":8080")

	require.NoError(t, ReleaseServerLock(lockPath))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is harmless.
	assert.NoError(t, ReleaseServerLock(lockPath))
}

func TestServerLock_StaleLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "evalflow.db")
	hostname, err := os.Hostname()
	require.NoError(t, err)

	// PIDs near the max are not in use on test machines.
	stale, err := json.Marshal(ServerLock{Holder: "evalflow-serve", PID: 999999, Hostname: hostname, Addr: ":9999"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, serverLockName), stale, 0644))

	lockPath, err := AcquireServerLock(dbPath, ":8080")
	require.NoError(t, err)
	defer func() { _ = ReleaseServerLock(lockPath) }()

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	var lock ServerLock
	require.NoError(t, json.Unmarshal(data, &lock))
	assert.Equal(t, os.Getpid(), lock.PID)
}
