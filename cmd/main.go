package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"imgsearch/internal/blob"
	"imgsearch/internal/ingest"
	"imgsearch/internal/metrics"
	"imgsearch/internal/models"
	"imgsearch/internal/ocr"
	"imgsearch/internal/preprocess"
	"imgsearch/internal/preview"
	"imgsearch/internal/queue"
	"imgsearch/internal/server"
	"imgsearch/internal/storage"
	"imgsearch/internal/tokenize"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := models.LoadConfig(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("bad log_level %q: %v", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer db.Close()

	blobs, err := blob.NewLocal(cfg.StoragePath, cfg.PublicURL)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	segmenter, err := tokenize.NewCJKSegmenter()
	if err != nil {
		log.Fatalf("failed to init segmenter: %v", err)
	}
	querySegmenter, err := tokenize.NewCachedSegmenter(segmenter, cfg.Search.QueryCacheSize)
	if err != nil {
		log.Fatalf("failed to init query cache: %v", err)
	}

	m := metrics.New()
	deps := ingest.Deps{
		Preprocessor:   preprocess.New(cfg.Preprocess),
		Recognizer:     ocr.NewAdapter(ocr.NewTesseract(), cfg.OCR, logger),
		Tokenizer:      tokenize.New(segmenter, logger),
		Blobs:          blobs,
		Index:          db,
		PersistTimeout: cfg.PersistTimeout,
		Metrics:        m,
		Logger:         logger,
	}

	var workers []func()
	if cfg.Kafka.Enabled {
		producer := preview.NewKafkaWriter(cfg.Kafka)
		defer producer.Close()
		deps.Notifier = preview.NewPublisher(producer)

		renderer, err := preview.NewRenderer(cfg.Preview)
		if err != nil {
			log.Fatalf("failed to init preview renderer: %v", err)
		}
		consumer := preview.NewKafkaReader(cfg.Kafka)
		defer consumer.Close()
		worker := preview.NewWorker(consumer, blobs, renderer, logger)
		workers = append(workers, func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("preview worker stopped", slog.String("error", err.Error()))
			}
		})
	}

	pipeline := ingest.NewPipeline(deps)
	q := queue.New(pipeline, m, logger)
	workers = append(workers, func() { q.Run(ctx) })
	var wg sync.WaitGroup
	for _, run := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}

	srv := server.NewServer(server.Deps{
		Config:   cfg,
		Index:    db,
		Blobs:    blobs,
		Pipeline: pipeline,
		Queue:    q,
		Query:    tokenize.New(querySegmenter, logger),
		Metrics:  m,
		Logger:   logger,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	// Workers may still be writing; they must finish before the deferred closes.
	wg.Wait()
	logger.Info("workers stopped")
}
