package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/api"
	"github.com/Gammanik/upload-compress/internal/assemble"
	"github.com/Gammanik/upload-compress/internal/catalog"
	"github.com/Gammanik/upload-compress/internal/chunkstore"
	"github.com/Gammanik/upload-compress/internal/compress"
	"github.com/Gammanik/upload-compress/internal/config"
	"github.com/Gammanik/upload-compress/internal/kvstore"
	"github.com/Gammanik/upload-compress/internal/pipeline"
	"github.com/Gammanik/upload-compress/internal/quality"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting upload server", zap.String("config", cfg.String()))

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	chunks, err := chunkstore.NewDiskStore(logger, filepath.Join(cfg.DataDir, "chunks"))
	if err != nil {
		logger.Fatal("failed to open chunk store", zap.Error(err))
	}

	assembler, err := assemble.NewAssembler(logger, chunks, filepath.Join(cfg.DataDir, "staging"))
	if err != nil {
		logger.Fatal("failed to create assembler", zap.Error(err))
	}

	qualityStore, err := kvstore.NewBoltStore(logger, cfg.QualityPath, "quality")
	if err != nil {
		logger.Fatal("failed to open quality store", zap.Error(err))
	}
	defer qualityStore.Close()

	model := quality.NewModel(logger, qualityStore)
	transcoder := compress.NewFFmpegTranscoder(logger, cfg.TranscoderBin)

	engines, err := compress.NewEngines(logger, model, transcoder, filepath.Join(cfg.DataDir, "objects"))
	if err != nil {
		logger.Fatal("failed to create compression engines", zap.Error(err))
	}

	cat, err := catalog.NewCatalog(logger, cfg.CatalogPath, cfg.BaseURL)
	if err != nil {
		logger.Fatal("failed to open catalog", zap.Error(err))
	}
	defer cat.Close()

	core := pipeline.New(logger, chunks, assembler, engines, cat)

	router := mux.NewRouter()
	handler := &api.Handler{Logger: logger, Pipeline: core}
	handler.Register(router)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	logger.Info("upload server listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
