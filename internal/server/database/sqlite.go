package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quicktext/internal/server/storage"
)

var _ storage.Store = (*SQLiteStore)(nil)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS shares (
		code            TEXT    PRIMARY KEY,
		content         TEXT    NOT NULL,
		content_type    TEXT    NOT NULL DEFAULT 'text',
		language        TEXT,
		password_hash   TEXT,
		max_views       INTEGER NOT NULL DEFAULT -1,
		views           INTEGER NOT NULL DEFAULT 0,
		one_time_access INTEGER NOT NULL DEFAULT 0,
		is_accessed     INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		expires_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares(expires_at);
`

// SQLiteStore persists shares in a single SQLite file. Timestamps are
// stored as unix nanoseconds so range comparisons stay numeric.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; SQLite would otherwise report "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, share *storage.Share) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING
	`,
		share.Code,
		share.Content,
		string(share.ContentType),
		nullString(share.Language),
		nullString(share.PasswordHash),
		share.MaxViews,
		share.Views,
		share.OneTimeAccess,
		share.IsAccessed,
		share.CreatedAt.UnixNano(),
		share.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	if n == 0 {
		return storage.ErrCodeCollision
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, code string) (*storage.Share, error) {
	var (
		share                storage.Share
		contentType          string
		language             sql.NullString
		passwordHash         sql.NullString
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE code = ?`, code,
	).Scan(
		&share.Code,
		&share.Content,
		&contentType,
		&language,
		&passwordHash,
		&share.MaxViews,
		&share.Views,
		&share.OneTimeAccess,
		&share.IsAccessed,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	share.ContentType = storage.ContentType(contentType)
	share.Language = language.String
	share.PasswordHash = passwordHash.String
	share.CreatedAt = time.Unix(0, createdAt).UTC()
	share.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &share, nil
}

func (s *SQLiteStore) Save(ctx context.Context, share *storage.Share, from storage.Revision) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shares SET content = ?, views = ?, is_accessed = ?
		WHERE code = ? AND views = ? AND is_accessed = ?
	`, share.Content, share.Views, share.IsAccessed, share.Code, from.Views, from.IsAccessed)
	if err != nil {
		return fmt.Errorf("failed to save share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save share: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM shares WHERE code = ?)", share.Code,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to save share: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func (s *SQLiteStore) Delete(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM shares WHERE code = ?", code); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM shares WHERE expires_at < ?", now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired shares: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired shares: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*storage.Stats, error) {
	stats := storage.NewStats()

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			content_type,
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(views), 0)
		FROM shares
		GROUP BY content_type
	`, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contentType          string
			total, active, views int64
		)
		if err := rows.Scan(&contentType, &total, &active, &views); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.TotalShares += total
		stats.ActiveShares += active
		stats.TotalViews += views
		stats.ContentTypes[storage.ContentType(contentType)] = total
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
