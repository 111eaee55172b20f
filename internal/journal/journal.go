package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"

	"github.com/giantswarm/enginectl/internal/fileutil"
	"github.com/giantswarm/enginectl/internal/sentinel"
)

// ErrClosed is returned by Record and Recent after Close.
const ErrClosed = sentinel.Error("journal is closed")

// maxStoredOutput caps the command output kept per entry. Longer output is
// truncated from the front so the final lines, which usually carry the
// error, survive.
const maxStoredOutput = 64 << 10

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_actions (
	id          TEXT PRIMARY KEY,
	action      TEXT NOT NULL,
	argv        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	exit_code   INTEGER,
	output      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS lifecycle_actions_started_at ON lifecycle_actions (started_at);
`

// Entry is one recorded lifecycle action.
type Entry struct {
	ID         string
	Action     string
	Argv       []string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	ExitCode   *int // nil when no exit status was observed
	Output     string
	Error      string
}

// Journal is safe for concurrent use.
type Journal struct {
	path   string
	logger func() *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// New returns a Journal backed by the SQLite file at path. It performs no
// I/O; the file and schema are created on first use.
//
// logger is called each time the journal logs, so the owner can swap its
// logger after construction. A nil logger uses slog.Default.
// Panics if path is empty.
func New(path string, logger func() *slog.Logger) *Journal {
	if path == "" {
		panic("enginectl: journal path must not be empty")
	}
	if logger == nil {
		logger = slog.Default
	}
	return &Journal{path: path, logger: logger}
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) conn(ctx context.Context) (*sql.DB, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}
	if j.db != nil {
		return j.db, nil
	}

	if err := fileutil.EnsureDirForFile(j.path); err != nil {
		return nil, fmt.Errorf("prepare journal: %w", err)
	}
	dsn, err := dataSourceName(j.path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", j.path, err)
	}
	// One writer at a time is all SQLite supports anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	j.db = db
	j.logger().Debug("opened lifecycle journal", "path", j.path)
	return db, nil
}

// dataSourceName returns the SQLite URI for path. The path is escaped, so
// characters such as '?' and '#' name the file instead of starting the query.
func dataSourceName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve journal path %s: %w", path, err)
	}
	u := &url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
	}
	return u.String(), nil
}

// Record appends e.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	db, err := j.conn(ctx)
	if err != nil {
		return err
	}
	argv, err := json.Marshal(e.Argv)
	if err != nil {
		return fmt.Errorf("encode argv: %w", err)
	}

	var exitCode sql.NullInt64
	if e.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO lifecycle_actions
			(id, action, argv, started_at, finished_at, outcome, exit_code, output, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, string(argv),
		e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli(),
		e.Outcome, exitCode, truncateOutput(e.Output), e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0, got %d", limit)
	}
	db, err := j.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, action, argv, started_at, finished_at, outcome, exit_code, output, error
		 FROM lifecycle_actions
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			argv                string
			startedAt, finished int64
			exitCode            sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Action, &argv, &startedAt, &finished,
			&e.Outcome, &exitCode, &e.Output, &e.Error); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if err := json.Unmarshal([]byte(argv), &e.Argv); err != nil {
			return nil, fmt.Errorf("decode argv of %s: %w", e.ID, err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.FinishedAt = time.UnixMilli(finished)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			e.ExitCode = &code
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Close closes the database. Further calls return ErrClosed; Close itself
// is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	if err != nil {
		return fmt.Errorf("close journal %s: %w", j.path, err)
	}
	return nil
}

func truncateOutput(s string) string {
	if len(s) <= maxStoredOutput {
		return s
	}
	return s[len(s)-maxStoredOutput:]
}
