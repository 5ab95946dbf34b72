package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"imgsearch/internal/blob"
	"imgsearch/internal/ingest"
	"imgsearch/internal/models"
	"imgsearch/internal/storage"
)

// intQuery reads a positive integer query parameter, def when absent.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be an integer >= 1, got %q", models.ErrInvalidArgument, name, raw)
	}
	return n, nil
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: bad image id %q", models.ErrInvalidArgument, c.Param("id"))
	}
	return id, nil
}

func (s *Server) handleSearch(c *gin.Context) {
	const op = "server.handleSearch"

	// q is matched verbatim, so a whitespace-only query is a literal search.
	q := c.Query("q")
	page, err := intQuery(c, "page", 1)
	if err != nil {
		s.searchFailed(c, op, err)
		return
	}
	limit, err := intQuery(c, "limit", s.cfg.Search.DefaultLimit)
	if err != nil {
		s.searchFailed(c, op, err)
		return
	}

	sq := storage.SearchQuery{Query: q, Page: page, PageSize: min(limit, s.cfg.Search.MaxLimit)}
	if q != "" {
		sq.Segmented = s.query.Join(q)
	}
	result, err := s.index.Search(c.Request.Context(), sq)
	if err != nil {
		s.searchFailed(c, op, err)
		return
	}
	s.metrics.SearchRequests.WithLabelValues("ok").Inc()

	results := result.Results
	if results == nil {
		results = []models.Image{}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"hasMore": result.HasMore,
		"page":    result.Page,
	})
}

func (s *Server) searchFailed(c *gin.Context, op string, err error) {
	s.metrics.SearchRequests.WithLabelValues("error").Inc()
	s.fail(c, op, "Search failed", err)
}

func (s *Server) handleGetImage(c *gin.Context) {
	const op = "server.handleGetImage"

	id, err := idParam(c)
	if err != nil {
		s.fail(c, op, "Lookup failed", err)
		return
	}
	img, err := s.index.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, op, "Lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          img.ID,
		"filename":    img.Filename,
		"url":         img.Locator,
		"upload_time": img.UploadTime,
	})
}

func (s *Server) handleRename(c *gin.Context) {
	const op = "server.handleRename"

	id, err := idParam(c)
	if err != nil {
		s.fail(c, op, "Update failed", err)
		return
	}
	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, op, "Missing id or filename", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err))
		return
	}
	filename := strings.TrimSpace(body.Filename)
	if filename == "" {
		s.fail(c, op, "Missing id or filename", fmt.Errorf("%w: filename is required", models.ErrInvalidArgument))
		return
	}

	if err := s.index.Rename(c.Request.Context(), id, filename); err != nil {
		s.fail(c, op, "Update failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id, "filename": filename})
}

func (s *Server) handleThumbnail(c *gin.Context) {
	const op = "server.handleThumbnail"

	id, err := idParam(c)
	if err != nil {
		s.fail(c, op, "Thumbnail failed", err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.index.Get(ctx, id); err != nil {
		s.fail(c, op, "Thumbnail failed", err)
		return
	}

	rc, size, err := s.blobs.Open(ctx, blob.ThumbnailKey(id))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
		return
	}
	if err != nil {
		s.fail(c, op, "Thumbnail failed", err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, size, "image/jpeg", rc, nil)
}

// readPart reads one uploaded file, rejecting files over upload.max_bytes.
func (s *Server) readPart(fh *multipart.FileHeader) ([]byte, error) {
	if limit := s.cfg.Upload.MaxBytes; limit > 0 && fh.Size > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", models.ErrInvalidArgument, fh.Filename, fh.Size, limit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// handleUpload ingests one file synchronously. A "text" form field, even an
// empty one, is taken as client-side OCR output and recognition is skipped.
func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, op, "No file provided", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err))
		return
	}
	data, err := s.readPart(fh)
	if err != nil {
		s.fail(c, op, "Upload failed", err)
		return
	}

	src := ingest.Source{Filename: fh.Filename, Data: data}
	if text, ok := c.GetPostForm("text"); ok {
		src.Text = &text
	}

	img, err := s.pipeline.Process(c.Request.Context(), src, nil)
	s.observeOutcome(err)
	if err != nil {
		s.fail(c, op, "Upload failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": img.ID, "filename": img.Filename, "url": img.Locator})
}

func (s *Server) observeOutcome(err error) {
	if err != nil {
		s.metrics.IngestItems.WithLabelValues("error").Inc()
		return
	}
	s.metrics.IngestItems.WithLabelValues("success").Inc()
}

type dumpRow struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	IndexedText string    `json:"indexed_text"`
	UploadTime  time.Time `json:"upload_time"`
}

func (s *Server) handleDebugDump(c *gin.Context) {
	const op = "server.handleDebugDump"

	if !s.cfg.Debug.Enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	limit, err := intQuery(c, "limit", s.cfg.Debug.DumpLimit)
	if err != nil {
		s.fail(c, op, "Dump failed", err)
		return
	}
	images, err := s.index.Recent(c.Request.Context(), min(limit, s.cfg.Debug.DumpLimit))
	if err != nil {
		s.fail(c, op, "Dump failed", err)
		return
	}

	rows := make([]dumpRow, 0, len(images))
	for _, img := range images {
		rows = append(rows, dumpRow{
			ID:          img.ID,
			Filename:    img.Filename,
			URL:         img.Locator,
			IndexedText: img.IndexedText,
			UploadTime:  img.UploadTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "rows": rows})
}
