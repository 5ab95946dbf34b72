package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"imgsearch/internal/models"
)

// SQLite is the embedded Index used for single-node deployments and tests.
// LIKE in SQLite folds case for ASCII letters only.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	const op = "storage.NewSQLite"

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	if err := runMigrations(ctx, db, goose.DialectSQLite3, "migrations/sqlite", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	// SQLite has a single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)

	return &SQLite{db: db}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

func (s *SQLite) Close() {
	s.db.Close()
}

func (s *SQLite) Insert(ctx context.Context, filename, locator, indexedText string) (int64, error) {
	const op = "storage.SQLite.Insert"

	if err := validateInsert(filename, locator); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO images (filename, locator, indexed_text) VALUES (?, ?, ?)`,
		filename, locator, indexedText)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	return id, nil
}

func (s *SQLite) Rename(ctx context.Context, id int64, filename string) error {
	const op = "storage.SQLite.Rename"

	if err := validateRename(filename); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE images SET filename = ? WHERE id = ?`, filename, id)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w: image %d", op, models.ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id int64) (*models.Image, error) {
	const op = "storage.SQLite.Get"

	var img models.Image
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, locator, indexed_text, upload_time FROM images WHERE id = ?`, id).
		Scan(&img.ID, &img.Filename, &img.Locator, &img.IndexedText, &img.UploadTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: image %d", op, models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	return &img, nil
}

func (s *SQLite) Search(ctx context.Context, q SearchQuery) (*models.SearchPage, error) {
	const op = "storage.SQLite.Search"

	limit, offset, err := pageWindow(q.Page, q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	where, args := buildSearchWhere(sqliteDialect, q, 1)
	query := fmt.Sprintf(`SELECT %s FROM images %s %s LIMIT ? OFFSET ?`, imageColumns, where, searchOrder)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	defer rows.Close()

	var result []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.Locator, &img.UploadTime); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
		}
		result = append(result, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}

	page, hasMore := trimPage(result, q.PageSize)
	return &models.SearchPage{Results: page, HasMore: hasMore, Page: q.Page}, nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]models.Image, error) {
	const op = "storage.SQLite.Recent"

	if limit < 1 {
		return nil, fmt.Errorf("%s: %w: limit must be >= 1", op, models.ErrInvalidArgument)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, locator, indexed_text, upload_time FROM images ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	defer rows.Close()

	var result []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.Locator, &img.IndexedText, &img.UploadTime); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
		}
		result = append(result, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	return result, nil
}

// Open picks the Index backend named by cfg.Driver.
func Open(ctx context.Context, cfg models.DatabaseConfig, logger *slog.Logger) (Index, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := NewStorage(ctx, cfg.URL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLite(ctx, cfg.URL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage.Open: %w: unknown driver %q", models.ErrInvalidArgument, cfg.Driver)
	}
}
