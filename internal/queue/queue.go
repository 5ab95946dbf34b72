// Package queue runs submitted uploads through the ingestion pipeline one at
// a time, in submission order, and keeps their observable state.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"imgsearch/internal/ingest"
	"imgsearch/internal/metrics"
	"imgsearch/internal/models"
)

// ErrBusy is returned when dismissing an item that has not finished.
var ErrBusy = errors.New("item is still processing")

type Processor interface {
	Process(ctx context.Context, src ingest.Source, observe ingest.Observer) (*models.Image, error)
}

// Event carries a snapshot of an item after every change.
type Event struct {
	Item models.QueueItem `json:"item"`
}

type entry struct {
	item   models.QueueItem
	src    ingest.Source
	hidden bool
	done   chan struct{}
}

type Queue struct {
	proc    Processor
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries []*entry
	byID    map[uuid.UUID]*entry
	// cursor is the index of the first entry that may still be pending.
	cursor int
	wake   chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(proc Processor, m *metrics.Metrics, logger *slog.Logger) *Queue {
	return &Queue{
		proc:    proc,
		metrics: m,
		logger:  logger,
		byID:    make(map[uuid.UUID]*entry),
		wake:    make(chan struct{}, 1),
		subs:    make(map[int]chan Event),
	}
}

// Submit appends files to the tail of the queue as pending items.
func (q *Queue) Submit(files []ingest.Source) []models.QueueItem {
	now := time.Now().UTC()
	items := make([]models.QueueItem, 0, len(files))

	q.mu.Lock()
	for _, f := range files {
		e := &entry{
			item: models.QueueItem{
				ID:        uuid.New(),
				Filename:  f.Filename,
				Status:    models.StatusPending,
				Message:   "waiting",
				CreatedAt: now,
			},
			src:  f,
			done: make(chan struct{}),
		}
		q.entries = append(q.entries, e)
		q.byID[e.item.ID] = e
		items = append(items, e.item)
	}
	q.mu.Unlock()

	q.metrics.QueuePending.Add(float64(len(items)))
	for _, it := range items {
		q.publish(it)
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return items
}

// List returns all visible items in submission order.
func (q *Queue) List() []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]models.QueueItem, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.hidden {
			items = append(items, e.item)
		}
	}
	return items
}

func (q *Queue) Get(id uuid.UUID) (models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return models.QueueItem{}, fmt.Errorf("queue.Get: %w: item %s", models.ErrNotFound, id)
	}
	return e.item, nil
}

// Dismiss hides a finished item from List.
func (q *Queue) Dismiss(id uuid.UUID) error {
	const op = "queue.Dismiss"

	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w: item %s", op, models.ErrNotFound, id)
	}
	if !e.item.Status.Terminal() {
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}
	e.hidden = true
	delete(q.byID, id)
	q.compact()
	return nil
}

// compact drops hidden entries. Hidden entries are terminal and therefore
// always behind the cursor. Caller holds q.mu.
func (q *Queue) compact() {
	n, cursor := 0, 0
	for i, e := range q.entries {
		if e.hidden {
			continue
		}
		q.entries[n] = e
		n++
		if i < q.cursor {
			cursor++
		}
	}
	clear(q.entries[n:])
	q.entries = q.entries[:n]
	q.cursor = cursor
}

// Wait blocks until item id reaches a terminal state.
func (q *Queue) Wait(ctx context.Context, id uuid.UUID) (models.QueueItem, error) {
	q.mu.Lock()
	e, ok := q.byID[id]
	q.mu.Unlock()
	if !ok {
		return models.QueueItem{}, fmt.Errorf("queue.Wait: %w: item %s", models.ErrNotFound, id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return models.QueueItem{}, ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return e.item, nil
}

// Subscribe returns a channel of item snapshots. Slow subscribers miss
// events rather than stall the queue. cancel must be called when done.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	q.subMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	q.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.subMu.Lock()
			delete(q.subs, id)
			close(ch)
			q.subMu.Unlock()
		})
	}
}

func (q *Queue) publish(item models.QueueItem) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	for _, ch := range q.subs {
		select {
		case ch <- Event{Item: item}:
		default:
		}
	}
}

// Run processes pending items until ctx is done. Only one Run may be active.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("ingestion queue started")
	for {
		if ctx.Err() != nil {
			q.logger.Info("ingestion queue stopped")
			return ctx.Err()
		}
		e := q.next()
		if e == nil {
			select {
			case <-ctx.Done():
				q.logger.Info("ingestion queue stopped")
				return ctx.Err()
			case <-q.wake:
			}
			continue
		}
		q.process(ctx, e)
	}
}

func (q *Queue) next() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.cursor < len(q.entries) {
		e := q.entries[q.cursor]
		q.cursor++
		if e.item.Status == models.StatusPending {
			return e
		}
	}
	return nil
}

func (q *Queue) process(ctx context.Context, e *entry) {
	q.mu.Lock()
	src := e.src
	q.mu.Unlock()

	img, err := q.proc.Process(ctx, src, func(s models.Status, progress int, msg string) {
		q.transition(e, s, progress, msg, 0)
	})
	if err != nil {
		q.logger.Error("ingestion failed",
			slog.String("item", e.item.ID.String()),
			slog.String("filename", src.Filename),
			slog.String("error", err.Error()))
		q.metrics.IngestItems.WithLabelValues("error").Inc()
		q.transition(e, models.StatusError, -1, ingest.Describe(err), 0)
		return
	}

	q.logger.Info("image ingested",
		slog.String("item", e.item.ID.String()),
		slog.Int64("id", img.ID),
		slog.String("filename", img.Filename))
	q.metrics.IngestItems.WithLabelValues("success").Inc()
	q.transition(e, models.StatusSuccess, 100, "saved as "+img.Filename, img.ID)
}

// transition applies a status update if it moves the item forward. Progress
// never decreases; a negative progress keeps the current value.
func (q *Queue) transition(e *entry, s models.Status, progress int, msg string, recordID int64) {
	q.mu.Lock()
	from := e.item.Status
	if !from.CanTransition(s) {
		q.mu.Unlock()
		return
	}
	e.item.Status = s
	if progress > e.item.Progress {
		e.item.Progress = min(progress, 100)
	}
	e.item.Message = msg
	if recordID != 0 {
		e.item.RecordID = recordID
	}
	if s.Terminal() {
		e.src = ingest.Source{}
		close(e.done)
	}
	item := e.item
	q.mu.Unlock()

	if from == models.StatusPending && s != models.StatusPending {
		q.metrics.QueuePending.Dec()
	}
	q.publish(item)
}
