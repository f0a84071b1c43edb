package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dperezm/tracknest/internal/config"
	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/crypto"
	"github.com/dperezm/tracknest/internal/extractor"
	"github.com/dperezm/tracknest/internal/filesystem"
	"github.com/dperezm/tracknest/internal/httpapp"
	"github.com/dperezm/tracknest/internal/ingest"
	"github.com/dperezm/tracknest/internal/logbuf"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/metrics"
	"github.com/dperezm/tracknest/internal/ranking"
	"github.com/dperezm/tracknest/internal/scheduler"
	"github.com/dperezm/tracknest/internal/spotify"
	"github.com/dperezm/tracknest/internal/store"
	"github.com/dperezm/tracknest/internal/tagging"
)

const (
	appName = "tracknest"
	version = "0.1.0"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if err := filesystem.EnsureDir(cfg.LibraryDir); err != nil {
		appLogger.Error("Failed to create library dir", "error", err)
		os.Exit(1)
	}

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close() //nolint:errcheck // process exit

	// Jobs left running by a crash go back to queued before workers start.
	if reset, err := db.ResetRunningDownloads(); err != nil {
		appLogger.Error("Failed to reset running downloads", "error", err)
		os.Exit(1)
	} else if len(reset) > 0 {
		appLogger.Info("Requeued interrupted downloads", "count", len(reset))
	}

	m := metrics.New()
	buf := logbuf.New(constants.DefaultLogBufferLines)
	box := crypto.New(cfg.SecretKey)
	if !box.Sealed() {
		appLogger.Warn("SECRET_KEY not set, refresh tokens stored unencrypted")
	}

	client := buildExtractor(cfg, appLogger)
	sched := scheduler.New(db, client, ranking.New(ranking.DefaultConfig()), tagging.New(cfg.FfmpegBin),
		appLogger, buf, m, scheduler.Config{
			LibraryDir:         cfg.LibraryDir,
			Concurrency:        cfg.Concurrency,
			HistoryKeep:        cfg.HistoryKeep,
			PreferredFormat:    cfg.PreferredAudioFormat,
			EmbedThumbnail:     cfg.EmbedThumbnail,
			CookiesFile:        cfg.CookiesFile,
			ExtractorArgs:      strings.Fields(cfg.ExtractorArgs),
			SearchLimit:        cfg.SearchLimit,
			SearchTimeout:      cfg.SearchTimeout,
			SearchPageSize:     cfg.SearchPageSize,
			SearchMaxPages:     cfg.SearchMaxPages,
			SearchStopScore:    cfg.SearchPageStopThreshold,
			MinAutochooseScore: cfg.MinAutochooseScore,
			SimulateSeconds:    cfg.SimulateSeconds,
		})
	if !cfg.DisableDownloadWorker {
		if err := sched.Start(); err != nil {
			appLogger.Error("Failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	auth := spotify.NewAuthenticator(db, box,
		cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI)
	ing := ingest.New(db, spotify.NewClient(appLogger), auth, appLogger, m)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(httpapp.CORS(cfg.CORSOrigins))

	h := httpapp.NewHandler(db, sched, ing, auth, m, appLogger, httpapp.Config{
		AppName:     appName,
		Version:     version,
		LibraryDir:  cfg.LibraryDir,
		CookiesFile: cfg.CookiesFile,
		CORSOrigins: cfg.CORSOrigins,
	})
	r.Route("/api/v1", h.RegisterRoutes)
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if err := sched.Shutdown(ctx); err != nil {
		appLogger.Error("Scheduler shutdown timed out", "error", err)
	}

	appLogger.Info("Server exiting")
}

// buildExtractor honors the per-concern fake flags: search and download
// can run faked independently of each other.
func buildExtractor(cfg *config.Config, log *logger.Logger) extractor.Client {
	if cfg.DownloadFake && cfg.SearchFake {
		return extractor.NewFake()
	}
	real := extractor.NewYtDlp(cfg.YtDlpBin, cfg.FfmpegBin, log)
	var searcher extractor.Client = real
	if cfg.SearchFake {
		searcher = extractor.NewFake()
	} else if cfg.SearchFallbackFake {
		searcher = extractor.SearchFallback{Primary: real, Backup: extractor.NewFake()}
	}
	var downloader extractor.Client = real
	if cfg.DownloadFake {
		downloader = extractor.NewFake()
	}
	if searcher == downloader {
		return real
	}
	return extractor.Split{Searcher: searcher, Downloader: downloader}
}
