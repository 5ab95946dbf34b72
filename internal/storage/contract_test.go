package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"imgsearch/internal/models"
)

// runIndexContract exercises behaviour every Index backend must share.
// newIndex must return an empty index.
func runIndexContract(t *testing.T, newIndex func(t *testing.T) Index) {
	t.Run("Pagination", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		for i := 0; i < 15; i++ {
			if _, err := idx.Insert(ctx, fmt.Sprintf("image-%02d", i), fmt.Sprintf("http://x/%d", i), ""); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}

		first, err := idx.Search(ctx, SearchQuery{Page: 1, PageSize: 12})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(first.Results) != 12 || !first.HasMore || first.Page != 1 {
			t.Fatalf("page 1: %d results, hasMore=%v, page=%d", len(first.Results), first.HasMore, first.Page)
		}
		second, err := idx.Search(ctx, SearchQuery{Page: 2, PageSize: 12})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(second.Results) != 3 || second.HasMore {
			t.Fatalf("page 2: %d results, hasMore=%v", len(second.Results), second.HasMore)
		}

		seen := map[int64]bool{}
		all := append(append([]models.Image{}, first.Results...), second.Results...)
		for i, img := range all {
			if seen[img.ID] {
				t.Fatalf("id %d returned twice", img.ID)
			}
			seen[img.ID] = true
			if i > 0 && img.ID > all[i-1].ID {
				t.Fatalf("results not newest first: %d after %d", img.ID, all[i-1].ID)
			}
		}

		exact, err := idx.Search(ctx, SearchQuery{Page: 1, PageSize: 15})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(exact.Results) != 15 || exact.HasMore {
			t.Fatalf("page size 15: %d results, hasMore=%v", len(exact.Results), exact.HasMore)
		}
	})

	t.Run("InvalidPaging", func(t *testing.T) {
		idx := newIndex(t)
		for _, q := range []SearchQuery{{Page: 0, PageSize: 1}, {Page: 1, PageSize: 0}, {Page: -3, PageSize: 10}, {Page: math.MaxInt/100 + 2, PageSize: 100}} {
			if _, err := idx.Search(context.Background(), q); !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("Search(%+v) error = %v, want ErrInvalidArgument", q, err)
			}
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		id, err := idx.Insert(ctx, "Rainy Day caption", "http://x/rain.jpg", "今天 下雨 雨天 hello world")
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if _, err := idx.Insert(ctx, "unrelated", "http://x/other.jpg", "nothing here"); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		for _, q := range []string{"Rainy", "rainy day", "下雨", "hello wor", "LO WO"} {
			page, err := idx.Search(ctx, SearchQuery{Query: q, Page: 1, PageSize: 10})
			if err != nil {
				t.Fatalf("Search(%q) error = %v", q, err)
			}
			if len(page.Results) != 1 || page.Results[0].ID != id {
				t.Errorf("Search(%q) = %+v, want only id %d", q, page.Results, id)
			}
		}
	})

	t.Run("SegmentedQuery", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		id, err := idx.Insert(ctx, "caption", "http://x/a.jpg", "下雨 雨天")
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		raw, err := idx.Search(ctx, SearchQuery{Query: "下雨天", Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(raw.Results) != 0 {
			t.Fatalf("raw query unexpectedly matched: %+v", raw.Results)
		}
		seg, err := idx.Search(ctx, SearchQuery{Query: "下雨天", Segmented: "下雨 雨天", Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(seg.Results) != 1 || seg.Results[0].ID != id {
			t.Fatalf("segmented query = %+v, want id %d", seg.Results, id)
		}
	})

	t.Run("WildcardsAreLiteral", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		if _, err := idx.Insert(ctx, "plain name", "http://x/a.jpg", "abc"); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		pct, err := idx.Insert(ctx, "100% real_deal", "http://x/b.jpg", "")
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		for _, q := range []string{"%", "_", "0% r"} {
			page, err := idx.Search(ctx, SearchQuery{Query: q, Page: 1, PageSize: 10})
			if err != nil {
				t.Fatalf("Search(%q) error = %v", q, err)
			}
			if len(page.Results) != 1 || page.Results[0].ID != pct {
				t.Errorf("Search(%q) = %+v, want only id %d", q, page.Results, pct)
			}
		}
	})

	t.Run("Rename", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		id, err := idx.Insert(ctx, "before", "http://x/r.jpg", "token text")
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		orig, err := idx.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		if err := idx.Rename(ctx, id, ""); !errors.Is(err, models.ErrInvalidArgument) {
			t.Fatalf("Rename(empty) error = %v, want ErrInvalidArgument", err)
		}
		if err := idx.Rename(ctx, 999999, "x"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Rename(missing) error = %v, want ErrNotFound", err)
		}
		if err := idx.Rename(ctx, id, "after"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		got, err := idx.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Filename != "after" {
			t.Errorf("Filename = %q, want after", got.Filename)
		}
		if got.IndexedText != orig.IndexedText || got.Locator != orig.Locator || !got.UploadTime.Equal(orig.UploadTime) {
			t.Errorf("rename touched other fields: before %+v after %+v", orig, got)
		}
	})

	t.Run("InsertValidation", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		if _, err := idx.Insert(ctx, "", "http://x", ""); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("Insert(empty filename) error = %v", err)
		}
		if _, err := idx.Insert(ctx, "name", "", ""); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("Insert(empty locator) error = %v", err)
		}
		a, _ := idx.Insert(ctx, "a", "http://x/a", "")
		b, _ := idx.Insert(ctx, "b", "http://x/b", "")
		if b <= a {
			t.Errorf("ids not increasing: %d then %d", a, b)
		}
	})

	t.Run("EqualUploadTimeNewestIDFirst", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		var ids []int64
		for _, name := range []string{"first", "second", "third"} {
			id, err := idx.Insert(ctx, name, "http://x/"+name, "")
			if err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			ids = append(ids, id)
		}
		setUploadTime(t, idx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

		page, err := idx.Search(ctx, SearchQuery{Page: 1, PageSize: 2})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(page.Results) != 2 || page.Results[0].ID != ids[2] || page.Results[1].ID != ids[1] || !page.HasMore {
			t.Fatalf("page 1 = %+v, want ids %d, %d", page.Results, ids[2], ids[1])
		}
		page, err = idx.Search(ctx, SearchQuery{Page: 2, PageSize: 2})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(page.Results) != 1 || page.Results[0].ID != ids[0] || page.HasMore {
			t.Fatalf("page 2 = %+v, want id %d", page.Results, ids[0])
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		idx := newIndex(t)
		if _, err := idx.Get(context.Background(), 12345); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Recent", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			if _, err := idx.Insert(ctx, fmt.Sprintf("n%d", i), "http://x", fmt.Sprintf("text %d", i)); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
		}
		rows, err := idx.Recent(ctx, 3)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(rows) != 3 || rows[0].Filename != "n4" || rows[0].IndexedText != "text 4" {
			t.Fatalf("Recent() = %+v", rows)
		}
		if _, err := idx.Recent(ctx, 0); !errors.Is(err, models.ErrInvalidArgument) {
			t.Fatalf("Recent(0) error = %v", err)
		}
	})
}

// setUploadTime stamps every row with the same upload time.
func setUploadTime(t *testing.T, idx Index, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	var err error
	switch s := idx.(type) {
	case *SQLite:
		_, err = s.db.ExecContext(ctx, `UPDATE images SET upload_time = ?`, ts.Format("2006-01-02 15:04:05.000"))
	case *Storage:
		_, err = s.pool.Exec(ctx, `UPDATE images SET upload_time = $1`, ts)
	default:
		t.Fatalf("setUploadTime: unsupported index %T", idx)
	}
	if err != nil {
		t.Fatalf("set upload_time: %v", err)
	}
}
