package storage

import (
	"errors"
	"math"
	"strings"
	"testing"

	"imgsearch/internal/models"
)

func TestPageWindow(t *testing.T) {
	tests := []struct {
		page, size     int
		limit, offset  int
		wantInvalidArg bool
	}{
		{page: 1, size: 12, limit: 13, offset: 0},
		{page: 2, size: 12, limit: 13, offset: 12},
		{page: 5, size: 1, limit: 2, offset: 4},
		{page: 0, size: 12, wantInvalidArg: true},
		{page: 1, size: 0, wantInvalidArg: true},
		{page: math.MaxInt/100 + 2, size: 100, wantInvalidArg: true},
		{page: 1, size: math.MaxInt, wantInvalidArg: true},
		{page: math.MaxInt/100 + 1, size: 100, limit: 101, offset: math.MaxInt / 100 * 100},
	}
	for _, tt := range tests {
		limit, offset, err := pageWindow(tt.page, tt.size)
		if tt.wantInvalidArg {
			if !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("pageWindow(%d, %d) error = %v", tt.page, tt.size, err)
			}
			continue
		}
		if err != nil || limit != tt.limit || offset != tt.offset {
			t.Errorf("pageWindow(%d, %d) = %d, %d, %v", tt.page, tt.size, limit, offset, err)
		}
	}
}

func TestTrimPage(t *testing.T) {
	rows := make([]models.Image, 13)
	got, more := trimPage(rows, 12)
	if len(got) != 12 || !more {
		t.Fatalf("trimPage(13, 12) = %d, %v", len(got), more)
	}
	got, more = trimPage(rows[:3], 12)
	if len(got) != 3 || more {
		t.Fatalf("trimPage(3, 12) = %d, %v", len(got), more)
	}
}

func TestContainsPattern(t *testing.T) {
	tests := map[string]string{
		"rain":   "%rain%",
		"100%":   `%100\%%`,
		"a_b":    `%a\_b%`,
		`c:\dir`: `%c:\\dir%`,
	}
	for in, want := range tests {
		if got := containsPattern(in); got != want {
			t.Errorf("containsPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildSearchWhere(t *testing.T) {
	where, args := buildSearchWhere(postgresDialect, SearchQuery{}, 1)
	if where != "" || len(args) != 0 {
		t.Fatalf("empty query: where = %q, args = %v", where, args)
	}

	where, args = buildSearchWhere(postgresDialect, SearchQuery{Query: "rain"}, 1)
	if !strings.Contains(where, "filename ILIKE $1") || !strings.Contains(where, "indexed_text ILIKE $2") {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[0] != "%rain%" {
		t.Errorf("args = %v", args)
	}

	where, args = buildSearchWhere(postgresDialect, SearchQuery{Query: "下雨天", Segmented: "下雨 雨天"}, 1)
	if !strings.Contains(where, "indexed_text ILIKE $3") || len(args) != 3 || args[2] != "%下雨 雨天%" {
		t.Errorf("segmented: where = %q, args = %v", where, args)
	}

	where, args = buildSearchWhere(sqliteDialect, SearchQuery{Query: "rain", Segmented: "rain"}, 1)
	if strings.Count(where, "?") != 2 || !strings.Contains(where, `LIKE ? ESCAPE '\'`) || len(args) != 2 {
		t.Errorf("sqlite: where = %q, args = %v", where, args)
	}
}
