package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the journal in process memory for the lifetime of the pool.
const MemoryDSN = "file:taskboard-journal?mode=memory&cache=shared"

type Config struct {
	DSN string
}

// FilePath returns the DSN for a journal file inside dir.
func FilePath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return "file:" + filepath.Join(dir, "journal.db")
}

// Open opens the SQLite journal. File-backed DSNs get their parent directory
// created. The pool is pinned to one connection so a shared in-memory
// database outlives idle connections.
func Open(cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = MemoryDSN
	}
	if path, ok := filePath(dsn); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	if !strings.Contains(dsn, "_pragma=") {
		dsn = appendParam(dsn, "_pragma=busy_timeout(5000)")
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxIdleTime(0)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

func filePath(dsn string) (string, bool) {
	if strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:") {
		return "", false
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "", false
	}
	return path, true
}

func appendParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}
