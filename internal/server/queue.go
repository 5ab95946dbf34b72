package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imgsearch/internal/ingest"
	"imgsearch/internal/models"
)

func (s *Server) handleQueueSubmit(c *gin.Context) {
	const op = "server.handleQueueSubmit"

	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, op, "No files provided", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		s.fail(c, op, "No files provided", fmt.Errorf("%w: form field files is empty", models.ErrInvalidArgument))
		return
	}

	sources := make([]ingest.Source, 0, len(headers))
	for _, fh := range headers {
		data, err := s.readPart(fh)
		if err != nil {
			s.fail(c, op, "Upload failed", err)
			return
		}
		sources = append(sources, ingest.Source{Filename: fh.Filename, Data: data})
	}

	items := s.queue.Submit(sources)
	c.JSON(http.StatusAccepted, gin.H{"items": items})
}

func (s *Server) handleQueueList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.queue.List()})
}

func queueID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad item id %q", models.ErrInvalidArgument, c.Param("id"))
	}
	return id, nil
}

func (s *Server) handleQueueGet(c *gin.Context) {
	const op = "server.handleQueueGet"

	id, err := queueID(c)
	if err != nil {
		s.fail(c, op, "Lookup failed", err)
		return
	}
	item, err := s.queue.Get(id)
	if err != nil {
		s.fail(c, op, "Lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleQueueDismiss(c *gin.Context) {
	const op = "server.handleQueueDismiss"

	id, err := queueID(c)
	if err != nil {
		s.fail(c, op, "Dismiss failed", err)
		return
	}
	if err := s.queue.Dismiss(id); err != nil {
		s.fail(c, op, "Dismiss failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleQueueEvents streams the current items and then every change as
// server-sent "item" events until the client goes away.
func (s *Server) handleQueueEvents(c *gin.Context) {
	events, cancel := s.queue.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for _, item := range s.queue.List() {
		c.SSEvent("item", item)
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("item", ev.Item)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
