package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/foresight/internal/config"
	"github.com/runnerr0/foresight/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// openTestStore returns a migrated in-memory store.
func openTestStore(t *testing.T) (*storage.SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run(context.Background()))

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db
}

// testConfig returns defaults pointed at a temp dir and an unused daemon port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Daemon.Port = 1
	return cfg
}

// writeTestConfig writes a config file whose database lives in a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/config.yaml"
	data := "storage:\n  path: " + dir + "\n  sqlite_file: test.db\ndaemon:\n  host: 127.0.0.1\n  port: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

var baseTime = time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC)

func recordVisits(t *testing.T, store *storage.SQLiteStore, at time.Time, urls ...string) {
	t.Helper()
	for _, u := range urls {
		_, err := store.RecordVisit(context.Background(), &storage.Visit{URL: u, Title: u, Timestamp: at})
		require.NoError(t, err)
	}
}
