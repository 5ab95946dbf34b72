package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"imgsearch/internal/blob"
	"imgsearch/internal/models"
)

func NewKafkaWriter(cfg models.KafkaConfig) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})
}

func NewKafkaReader(cfg models.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher announces indexed records on the preview topic.
type Publisher struct {
	writer MessageWriter
}

func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) ImageIndexed(ctx context.Context, ev models.IndexedEvent) error {
	const op = "preview.ImageIndexed"

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	msg := kafka.Message{Key: []byte(strconv.FormatInt(ev.ID, 10)), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Put(ctx context.Context, key string, r io.Reader) (blob.Object, error)
}

// Worker consumes IndexedEvent messages and stores a thumbnail for each.
type Worker struct {
	reader   MessageReader
	store    Store
	renderer *Renderer
	logger   *slog.Logger
}

func NewWorker(reader MessageReader, store Store, renderer *Renderer, logger *slog.Logger) *Worker {
	return &Worker{reader: reader, store: store, renderer: renderer, logger: logger}
}

// Run reads messages until ctx is done or the reader is closed. A message
// that cannot be handled is logged and skipped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			w.logger.Error("error reading message", slog.String("error", err.Error()))
			continue
		}
		if err := w.Handle(ctx, msg); err != nil {
			w.logger.Error("error rendering preview",
				slog.Int64("offset", msg.Offset), slog.String("error", err.Error()))
		}
	}
}

func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	const op = "preview.Handle"

	var ev models.IndexedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrInvalidArgument, err)
	}
	if ev.ID <= 0 || ev.Key == "" {
		return fmt.Errorf("%s: %w: incomplete event %+v", op, models.ErrInvalidArgument, ev)
	}

	src, _, err := w.store.Open(ctx, ev.Key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()

	thumb, err := w.renderer.Render(src)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	obj, err := w.store.Put(ctx, blob.ThumbnailKey(ev.ID), bytes.NewReader(thumb))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.logger.Info("preview rendered", slog.Int64("id", ev.ID), slog.String("key", obj.Key))
	return nil
}
