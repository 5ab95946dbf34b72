// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"

	"imgsearch/internal/models"
)

// Storage is the Postgres-backed Index. Queries run on a pgx pool;
// migrations run once at startup over a database/sql handle.
type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	const op = "storage.NewStorage"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	err = runMigrations(ctx, db, goose.DialectPostgres, "migrations/postgres", logger)
	db.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Insert(ctx context.Context, filename, locator, indexedText string) (int64, error) {
	const op = "storage.Insert"

	if err := validateInsert(filename, locator); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO images (filename, locator, indexed_text) VALUES ($1, $2, $3) RETURNING id`,
		filename, locator, indexedText).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	return id, nil
}

func (s *Storage) Rename(ctx context.Context, id int64, filename string) error {
	const op = "storage.Rename"

	if err := validateRename(filename); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE images SET filename = $2 WHERE id = $1`, id, filename)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w: image %d", op, models.ErrNotFound, id)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, id int64) (*models.Image, error) {
	const op = "storage.Get"

	var img models.Image
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, locator, indexed_text, upload_time FROM images WHERE id = $1`, id).
		Scan(&img.ID, &img.Filename, &img.Locator, &img.IndexedText, &img.UploadTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: image %d", op, models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrPersistence, err)
	}
	return &img, nil
}

func (s *Storage) Search(ctx context.Context, q SearchQuery) (*models.SearchPage, error) {
	const op = "storage.Search"

	limit, offset, err := pageWindow(q.Page, q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	where, args := buildSearchWhere(postgresDialect, q, 1)
	argNum := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM images %s %s LIMIT $%d OFFSET $%d`,
		imageColumns, where, searchOrder, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Storage) Recent(ctx context.Context, limit int) ([]models.Image, error) {
	const op = "storage.Recent"

	if limit < 1 {
		return nil, fmt.Errorf("%s: %w: limit must be >= 1", op, models.ErrInvalidArgument)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, locator, indexed_text, upload_time FROM images ORDER BY id DESC LIMIT $1`, limit)
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
