// Package ingest drives one uploaded image through preprocessing, OCR,
// tokenization, naming and persistence.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"imgsearch/internal/blob"
	"imgsearch/internal/metrics"
	"imgsearch/internal/models"
	"imgsearch/internal/naming"
	"imgsearch/internal/ocr"
	"imgsearch/internal/storage"
)

type Preprocessor interface {
	Preprocess(data []byte) ([]byte, error)
}

type Recognizer interface {
	Start(ctx context.Context, image []byte) *ocr.Recognition
}

type Tokenizer interface {
	Join(text string) string
}

type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (blob.Object, error)
	Delete(ctx context.Context, key string) error
}

// Notifier is told about every record that was inserted.
type Notifier interface {
	ImageIndexed(ctx context.Context, ev models.IndexedEvent) error
}

// Source is one file to ingest. When Text is set the client already ran OCR
// and preprocessing and recognition are skipped.
type Source struct {
	Filename string
	Data     []byte
	Text     *string
}

// Observer receives every stage transition of a Process call.
type Observer func(status models.Status, progress int, message string)

type Pipeline struct {
	pre            Preprocessor
	ocr            Recognizer
	tok            Tokenizer
	blobs          BlobStore
	index          storage.Index
	notifier       Notifier
	persistTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type Deps struct {
	Preprocessor   Preprocessor
	Recognizer     Recognizer
	Tokenizer      Tokenizer
	Blobs          BlobStore
	Index          storage.Index
	Notifier       Notifier // optional
	PersistTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

func NewPipeline(d Deps) *Pipeline {
	return &Pipeline{
		pre:            d.Preprocessor,
		ocr:            d.Recognizer,
		tok:            d.Tokenizer,
		blobs:          d.Blobs,
		index:          d.Index,
		notifier:       d.Notifier,
		persistTimeout: d.PersistTimeout,
		metrics:        d.Metrics,
		logger:         d.Logger,
	}
}

// Process ingests src and returns the inserted record. Nothing is written
// unless every derivation step succeeded; the record insert is the single
// commit point.
func (p *Pipeline) Process(ctx context.Context, src Source, observe Observer) (*models.Image, error) {
	const op = "ingest.Process"

	if observe == nil {
		observe = func(models.Status, int, string) {}
	}
	if len(src.Data) == 0 {
		return nil, fmt.Errorf("%s: %w: empty file", op, models.ErrInvalidArgument)
	}

	var text string
	if src.Text != nil {
		text = *src.Text
	} else {
		recognized, err := p.recognize(ctx, src.Data, observe)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		text = recognized
	}

	start := time.Now()
	indexed := p.tok.Join(text)
	name := naming.Derive(src.Filename, text)
	p.metrics.ObserveStage("tokenize", start)

	observe(models.StatusUploading, ocr.ProgressEnd, "saving")
	img, key, err := p.persist(ctx, src, name, indexed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p.notifier != nil {
		ev := models.IndexedEvent{ID: img.ID, Key: key, Filename: img.Filename}
		if err := p.notifier.ImageIndexed(ctx, ev); err != nil {
			p.logger.Warn("indexed event not published",
				slog.Int64("id", img.ID), slog.String("error", err.Error()))
		}
	}
	return img, nil
}

func (p *Pipeline) recognize(ctx context.Context, data []byte, observe Observer) (string, error) {
	observe(models.StatusPreprocessing, 0, "preparing image")
	start := time.Now()
	prepared, err := p.pre.Preprocess(data)
	p.metrics.ObserveStage("preprocess", start)
	if err != nil {
		return "", err
	}
	observe(models.StatusPreprocessing, ocr.ProgressStart, "image prepared")

	observe(models.StatusRecognizing, ocr.ProgressStart, "recognizing text")
	start = time.Now()
	rec := p.ocr.Start(ctx, prepared)
	for pct := range rec.Progress() {
		observe(models.StatusRecognizing, pct, fmt.Sprintf("recognizing text %d%%", pct))
	}
	text, err := rec.Wait()
	p.metrics.ObserveStage("recognize", start)
	return text, err
}

func (p *Pipeline) persist(ctx context.Context, src Source, name, indexed string) (*models.Image, string, error) {
	if p.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.persistTimeout)
		defer cancel()
	}
	start := time.Now()
	defer p.metrics.ObserveStage("persist", start)

	key := blob.NewKey(src.Filename)
	obj, err := p.blobs.Put(ctx, key, bytes.NewReader(src.Data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	id, err := p.index.Insert(ctx, name, obj.Locator, indexed)
	if err != nil {
		// The record is the commit point; drop the orphaned blob.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if derr := p.blobs.Delete(cleanupCtx, key); derr != nil {
			p.logger.Warn("orphan blob not removed", slog.String("key", key), slog.String("error", derr.Error()))
		}
		if !errors.Is(err, models.ErrPersistence) {
			err = fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		return nil, "", err
	}

	return &models.Image{ID: id, Filename: name, Locator: obj.Locator, IndexedText: indexed}, key, nil
}

// Describe turns a pipeline error into a short message for the item's row.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid file: " + err.Error()
	case errors.Is(err, models.ErrPreprocess):
		return "could not read image: " + err.Error()
	case errors.Is(err, models.ErrOCR):
		return "text recognition failed: " + err.Error()
	case errors.Is(err, models.ErrPersistence):
		return "saving failed: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}
