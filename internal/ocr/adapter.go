// Package ocr wraps a text recognition engine behind a single-flight adapter
// that reports progress on the 0..100 display scale.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"imgsearch/internal/models"
)

// Display progress band owned by recognition. 0..10 belongs to preprocessing,
// 90..100 to persistence.
const (
	ProgressStart = 10
	ProgressEnd   = 90
)

type Stage int

const (
	StageLoading Stage = iota
	StageRecognizing
)

// Event is a raw progress notification from an engine. Fraction is 0..1
// within Stage.
type Event struct {
	Stage    Stage
	Fraction float64
}

// Engine recognizes text in an encoded image. report must not be retained
// after Recognize returns.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, languages []string, report func(Event)) (string, error)
}

type Adapter struct {
	engine    Engine
	languages []string
	timeout   time.Duration
	logger    *slog.Logger

	// sem holds a token while the engine is running. Engines are not assumed
	// safe for concurrent use, so at most one call is in flight.
	sem chan struct{}
}

func NewAdapter(engine Engine, cfg models.OCRConfig, logger *slog.Logger) *Adapter {
	return &Adapter{
		engine:    engine,
		languages: append([]string(nil), cfg.Languages...),
		timeout:   cfg.Timeout,
		logger:    logger,
		sem:       make(chan struct{}, 1),
	}
}

// Recognition is an in-flight OCR call.
type Recognition struct {
	progress chan int
	done     chan struct{}
	text     string
	err      error
}

// Progress yields non-decreasing display percentages within
// [ProgressStart, ProgressEnd]. It is closed when recognition finishes and
// must be drained by the caller.
func (r *Recognition) Progress() <-chan int { return r.progress }

// Wait blocks until recognition finishes.
func (r *Recognition) Wait() (string, error) {
	<-r.done
	return r.text, r.err
}

type outcome struct {
	text string
	err  error
}

// Start runs the engine on image in the background. Failures, including the
// configured timeout, are reported by Wait as models.ErrOCR.
func (a *Adapter) Start(ctx context.Context, image []byte) *Recognition {
	rec := &Recognition{
		progress: make(chan int, 8),
		done:     make(chan struct{}),
	}
	go a.run(ctx, image, rec)
	return rec
}

func (a *Adapter) run(parent context.Context, image []byte, rec *Recognition) {
	const op = "ocr.Recognize"

	defer close(rec.done)
	defer close(rec.progress)

	ctx := parent
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, a.timeout)
		defer cancel()
	}

	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		rec.err = fmt.Errorf("%s: %w: waiting for engine: %v", op, models.ErrOCR, ctx.Err())
		return
	}

	events := make(chan Event, 32)
	result := make(chan outcome, 1)
	go func() {
		// The token is released only when the engine really returns, even if
		// the caller gave up on it.
		defer func() { <-a.sem }()
		text, err := a.engine.Recognize(ctx, image, a.languages, func(ev Event) {
			select {
			case events <- ev:
			default:
			}
		})
		result <- outcome{text: text, err: err}
	}()

	last := -1
	emit := func(pct int) {
		if pct <= last {
			return
		}
		last = pct
		select {
		case rec.progress <- pct:
		case <-ctx.Done():
		}
	}
	emit(ProgressStart)

	for {
		select {
		case ev := <-events:
			if ev.Stage == StageRecognizing {
				emit(displayProgress(ev.Fraction))
			}
		case out := <-result:
			if out.err != nil {
				a.logger.Warn("ocr engine failed", slog.String("engine", a.engine.Name()), slog.String("error", out.err.Error()))
				rec.err = fmt.Errorf("%s: %w: %v", op, models.ErrOCR, out.err)
				return
			}
			emit(ProgressEnd)
			rec.text = out.text
			return
		case <-ctx.Done():
			rec.err = fmt.Errorf("%s: %w: %v", op, models.ErrOCR, ctx.Err())
			return
		}
	}
}

func displayProgress(fraction float64) int {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return ProgressStart + int(math.Round(fraction*float64(ProgressEnd-ProgressStart)))
}
