package rpclog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// logSubdir is the directory under the session working directory that holds
// audit logs.
const logSubdir = ".gemini-desktop/rpc-logs"

// DefaultRetention is how long audit logs are kept before cleanup removes
// them.
const DefaultRetention = 7 * 24 * time.Hour

// SQLiteLogger writes one row per JSON-RPC line into a session-scoped
// SQLite file.
type SQLiteLogger struct {
	db   *sql.DB
	path string
}

var _ Logger = (*SQLiteLogger)(nil)

// New creates the audit log for one session. workingDirectory anchors the
// log location; cliName tags the session's backend in the log metadata.
func New(workingDirectory, cliName string) (*SQLiteLogger, error) {
	dir := filepath.Join(workingDirectory, logSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rpc log directory: %w", err)
	}

	name := fmt.Sprintf("rpc-%s-%d-%s.db", sanitize(cliName), time.Now().Unix(), shortID())
	path := filepath.Join(dir, name)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open rpc log: %w", err)
	}

	// SQLite is single-writer by design. Keep a single shared connection so
	// concurrent callers are serialized by database/sql instead of fighting
	// for write locks across multiple underlying connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rpc_log (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			ts   TIMESTAMP NOT NULL,
			line TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create rpc log schema: %w", err)
	}

	if _, err := db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('cli_name', ?), ('created_at', ?)",
		cliName, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("write rpc log metadata: %w", err)
	}

	return &SQLiteLogger{db: db, path: path}, nil
}

// LogRPC appends one wire line with a timestamp.
func (l *SQLiteLogger) LogRPC(line string) error {
	if _, err := l.db.Exec("INSERT INTO rpc_log (ts, line) VALUES (?, ?)", time.Now(), line); err != nil {
		return fmt.Errorf("write rpc log line: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *SQLiteLogger) Close() error {
	return l.db.Close()
}

// Path returns the log file location.
func (l *SQLiteLogger) Path() string {
	return l.path
}

// CleanupOldLogs deletes audit logs under workingDirectory older than
// retention. Missing directories are fine; per-file removal failures are
// logged and skipped so one stuck file cannot abort the sweep.
func CleanupOldLogs(workingDirectory string, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	dir := filepath.Join(workingDirectory, logSubdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read rpc log directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "rpc-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			slog.Warn("rpclog: could not remove old log", "file", entry.Name(), "err", err)
		}
	}
	return nil
}

// sanitize makes a CLI name safe for use in a filename.
func sanitize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "agent"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

// shortID returns a compact unique suffix for log filenames.
func shortID() string {
	return uuid.NewString()[:8]
}
