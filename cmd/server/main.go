package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"slideshow/internal/cache"
	"slideshow/internal/config"
	httphandlers "slideshow/internal/http"
	"slideshow/internal/image_list"
	"slideshow/internal/image_renderer"
	"slideshow/internal/loader"
	"slideshow/internal/logger"
	"slideshow/internal/navigator"
	"slideshow/internal/source"
	"slideshow/internal/viewer"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	mode, err := navigator.ParseMode(cfg.SlideMode)
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	fitMode, err := cache.ParseFitMode(cfg.FitMode)
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	// Set up logging
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		// Map vips log levels to zap levels
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelWarning)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	log.Info("Starting slideshow server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.String("slide_mode", mode.String()),
		zap.String("fit_mode", fitMode.String()),
	)

	fs := source.New(cfg.MaxFileSize(), log)

	scanner := image_list.New(cfg.DataDir, fs, cfg.ArchivesEnabled, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial scan failed", zap.Error(err))
	}

	nav := navigator.New(fs, source.DefaultExtensions, mode, log)
	nav.SetFiles(scanner.IDs(), scanner.Folders())

	store, err := cache.NewCache(cfg.CacheType, cfg.CacheCapacity, cfg.MinFreeBytes(), log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}

	renderer := image_renderer.New(cfg.DraftJPEGQuality, cfg.FinalJPEGQuality, log)

	queue := loader.NewQueue()
	imageLoader := loader.New(loader.Config{
		DraftWorkers: cfg.DraftWorkers,
		Neighbors:    nav,
	}, fs, renderer, store, queue, log)
	defer imageLoader.Close()

	view := viewer.New(viewer.Config{
		SlideDuration:  cfg.SlideDuration,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		FitMode:        fitMode,
		Playing:        true,
	}, imageLoader, nav, fs, queue, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	viewerDone := make(chan struct{})
	go func() {
		defer close(viewerDone)
		view.Run(ctx)
	}()

	handlers := httphandlers.New(cfg, log, scanner, view)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port), zap.Int("images", scanner.Len()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	stop()
	<-viewerDone

	log.Info("Server stopped")
}
