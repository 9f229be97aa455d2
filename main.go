package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"lessonkb/catalog"
	"lessonkb/config"
	"lessonkb/kb"
	"lessonkb/logger"
	"lessonkb/media"
	"lessonkb/metrics"
	"lessonkb/processors"
	"lessonkb/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	if err := os.MkdirAll(cfg.DataRoot, 0755); err != nil {
		log.Fatal("failed to create data dir", zap.Error(err))
	}
	if !cfg.HasValidAPI() {
		log.Warn("API configuration missing: captioning, embedding and transcription run degraded; lessons become text-only")
	}

	videos := media.NewSource(log)
	embedder := storage.NewOpenAIEmbedder(cfg)

	frames, err := storage.NewObjectStore(cfg, log)
	if err != nil {
		log.Fatal("failed to create object store", zap.Error(err))
	}
	if err := frames.EnsureBucket(context.Background()); err != nil {
		log.Warn("frame bucket unavailable, uploads will fail until it comes back", zap.Error(err))
	}

	store := storage.Init(cfg, embedder, log)
	captioner := processors.PickCaptioner(cfg, log)
	asr := processors.PickASRProvider(cfg, videos, log)

	pipeline := processors.NewKeyframePipeline(videos, captioner, embedder, frames, cfg.TempDir, log)
	writer := kb.NewWriter(filepath.Join(cfg.DataRoot, "knowledge_base"), log)
	lessons := processors.NewLessonProcessor(asr, pipeline, writer, cfg.KeyframesDisabled, log)

	srv := &server{
		cfg:      cfg,
		log:      log,
		lessons:  lessons,
		pipeline: pipeline,
		asr:      asr,
		store:    store,
		catalog:  catalog.NewClient(cfg.CatalogBaseURL, log),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/process-lesson", srv.processLessonHandler)
	mux.HandleFunc("/extract-keyframes", srv.extractKeyframesHandler)
	mux.HandleFunc("/search", srv.searchHandler)
	mux.HandleFunc("/health", srv.healthHandler)
	mux.Handle("/metrics", metrics.Handler())

	addr := ":" + cfg.Port
	log.Info("server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
