package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DataDir is the per-project directory holding the SQLite database.
const DataDir = ".evalflow"

// DiscoverDatabase looks for .evalflow/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// EVALFLOW_DB_PATH is checked first so tests and scripts can point at an
// explicit file (or ":memory:") without discovery.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("EVALFLOW_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// discoverDatabaseInDir checks for .evalflow/*.db in the specified directory.
// It does not walk up the tree, so a nested project never picks up a parent's
// database.
func discoverDatabaseInDir(dir string) (string, error) {
	dataDir := filepath.Join(dir, DataDir)

	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(dataDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(dataDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'evalflow init' to create a database in this directory\n"+
			"  Or use --db flag to specify database path explicitly",
		DataDir, dir)
}

// GetProjectRoot returns the directory containing the .evalflow/ directory
// of a database path.
//
// Example:
//
//	dbPath: /srv/evalflow/.evalflow/evalflow.db
//	returns: /srv/evalflow
func GetProjectRoot(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dbDir := filepath.Dir(absPath)
	if filepath.Base(dbDir) != DataDir {
		return "", fmt.Errorf("database must be in a %s/ directory, got: %s", DataDir, dbPath)
	}
	return filepath.Dir(dbDir), nil
}

// InitProject creates the .evalflow directory and returns the path the new
// database should be opened at. The database itself is created on first
// connection.
func InitProject(projectDir, name string) (string, error) {
	if _, err := os.Stat(projectDir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	dataDir := filepath.Join(projectDir, DataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", DataDir, err)
	}

	dbName := name
	if dbName == "" {
		dbName = "evalflow"
	}
	if !strings.HasSuffix(dbName, ".db") {
		dbName += ".db"
	}

	dbPath := filepath.Join(dataDir, dbName)
	if _, err := os.Stat(dbPath); err == nil {
		return "", fmt.Errorf("database already exists: %s", dbPath)
	}
	return dbPath, nil
}
