package storage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"imgsearch/internal/models"
)

// Index is the persistence boundary for image records.
type Index interface {
	Insert(ctx context.Context, filename, locator, indexedText string) (int64, error)
	Rename(ctx context.Context, id int64, filename string) error
	Get(ctx context.Context, id int64) (*models.Image, error)
	Search(ctx context.Context, q SearchQuery) (*models.SearchPage, error)
	Recent(ctx context.Context, limit int) ([]models.Image, error)
	Close()
}

// SearchQuery selects one page of records. An empty Query matches all
// records. Segmented, when set and different from Query, is the tokenized
// form of Query and is additionally matched against indexed_text.
type SearchQuery struct {
	Query     string
	Segmented string
	Page      int
	PageSize  int
}

const imageColumns = `id, filename, locator, upload_time`

// dialect captures the SQL differences between backends.
type dialect struct {
	like        string
	escape      string
	placeholder func(n int) string
}

var (
	postgresDialect = dialect{
		like:        "ILIKE",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	sqliteDialect = dialect{
		like:        "LIKE",
		escape:      ` ESCAPE '\'`,
		placeholder: func(int) string { return "?" },
	}
)

// pageWindow converts a 1-based page into LIMIT/OFFSET. One extra row is
// fetched so hasMore can be answered without a count query.
func pageWindow(page, pageSize int) (limit, offset int, err error) {
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1, got %d", models.ErrInvalidArgument, page)
	}
	if pageSize < 1 {
		return 0, 0, fmt.Errorf("%w: page size must be >= 1, got %d", models.ErrInvalidArgument, pageSize)
	}
	if pageSize == math.MaxInt || page-1 > math.MaxInt/pageSize {
		return 0, 0, fmt.Errorf("%w: page %d of size %d is out of range", models.ErrInvalidArgument, page, pageSize)
	}
	return pageSize + 1, (page - 1) * pageSize, nil
}

func trimPage(rows []models.Image, pageSize int) ([]models.Image, bool) {
	if len(rows) > pageSize {
		return rows[:pageSize], true
	}
	return rows, false
}

// containsPattern builds a LIKE pattern matching s as a literal substring.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// buildSearchWhere returns the WHERE clause for q and its arguments, numbering
// placeholders from startArg.
func buildSearchWhere(d dialect, q SearchQuery, startArg int) (string, []any) {
	if q.Query == "" {
		return "", nil
	}
	argNum := startArg
	var conditions []string
	var args []any
	add := func(column, pattern string) {
		conditions = append(conditions,
			fmt.Sprintf("%s %s %s%s", column, d.like, d.placeholder(argNum), d.escape))
		args = append(args, pattern)
		argNum++
	}

	pattern := containsPattern(q.Query)
	add("filename", pattern)
	add("indexed_text", pattern)
	if q.Segmented != "" && q.Segmented != q.Query {
		add("indexed_text", containsPattern(q.Segmented))
	}

	return "WHERE (" + strings.Join(conditions, " OR ") + ")", args
}

const searchOrder = "ORDER BY upload_time DESC, id DESC"

func validateInsert(filename, locator string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename must not be empty", models.ErrInvalidArgument)
	}
	if strings.TrimSpace(locator) == "" {
		return fmt.Errorf("%w: locator must not be empty", models.ErrInvalidArgument)
	}
	return nil
}

func validateRename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename must not be empty", models.ErrInvalidArgument)
	}
	return nil
}
