// Package scheduler owns the download queue and worker pool. The database
// is the single authority for job state; the in-memory queue only carries
// job ids, and workers re-read the row on pop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/extractor"
	"github.com/dperezm/tracknest/internal/httpclient"
	"github.com/dperezm/tracknest/internal/logbuf"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/metrics"
	"github.com/dperezm/tracknest/internal/ranking"
	"github.com/dperezm/tracknest/internal/store"
	"github.com/dperezm/tracknest/internal/tagging"
)

var (
	// ErrNoCandidate means the track has no chosen candidate to download.
	ErrNoCandidate = errors.New("no candidate chosen for track")
	// ErrWorkerStopped means the pool is not accepting work until restart.
	ErrWorkerStopped = errors.New("download worker is stopped")
	// ErrJobRunning refuses operations that would touch an in-flight job.
	ErrJobRunning = errors.New("job is currently running")
)

// Config carries the scheduler tunables resolved from the environment.
type Config struct {
	LibraryDir      string
	Concurrency     int
	QueueCapacity   int
	HistoryKeep     int
	SweepEvery      time.Duration
	PreferredFormat string
	EmbedThumbnail  bool
	CookiesFile     string
	ExtractorArgs   []string
	DownloadTimeout time.Duration

	SearchLimit        int
	SearchTimeout      time.Duration
	SearchPageSize     int
	SearchMaxPages     int
	SearchStopScore    float64
	MinAutochooseScore float64
	SearchParallelism  int64

	SimulateSeconds float64
}

func (c *Config) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = constants.DefaultConcurrency
	}
	if c.QueueCapacity < 1 {
		c.QueueCapacity = constants.DefaultQueueCapacity
	}
	if c.HistoryKeep <= 0 {
		c.HistoryKeep = constants.DefaultHistoryKeep
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = constants.DefaultHistorySweepEvery
	}
	if c.PreferredFormat == "" {
		c.PreferredFormat = constants.DefaultPreferredFormat
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = constants.DefaultHTTPTimeout
	}
	if c.SearchLimit < 1 {
		c.SearchLimit = constants.DefaultSearchLimit
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = constants.DefaultSearchTimeout
	}
	if c.SearchPageSize < 1 {
		c.SearchPageSize = constants.DefaultSearchPageSize
	}
	if c.SearchMaxPages < 1 {
		c.SearchMaxPages = constants.DefaultSearchMaxPages
	}
	if c.SearchStopScore == 0 {
		c.SearchStopScore = constants.DefaultSearchStopScore
	}
	if c.MinAutochooseScore == 0 {
		c.MinAutochooseScore = constants.DefaultMinAutochooseScore
	}
	if c.SearchParallelism < 1 {
		c.SearchParallelism = constants.DefaultSearchParallelism
	}
}

// Status is the introspection surface behind /downloads/status.
type Status struct {
	WorkerRunning bool `json:"worker_running"`
	QueueSize     int  `json:"queue_size"`
	ActiveTasks   int  `json:"active_tasks"`
	Concurrency   int  `json:"concurrency"`
}

// Scheduler runs downloads with bounded concurrency.
type Scheduler struct {
	db        *store.DB
	extractor extractor.Client
	ranker    *ranking.Engine
	tagger    *tagging.Tagger
	images    *http.Client
	log       *logger.Logger
	buf       *logbuf.Buffer
	metrics   *metrics.Metrics
	cfg       Config

	queue  chan int64
	active atomic.Int32

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(db *store.DB, client extractor.Client, ranker *ranking.Engine, tagger *tagging.Tagger,
	log *logger.Logger, buf *logbuf.Buffer, m *metrics.Metrics, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		db:        db,
		extractor: client,
		ranker:    ranker,
		tagger:    tagger,
		images:    httpclient.New(constants.ImageHTTPTimeout),
		log:       log.WithComponent("scheduler"),
		buf:       buf,
		metrics:   m,
		cfg:       cfg,
		queue:     make(chan int64, cfg.QueueCapacity),
	}
}

// Start spins up the worker pool and the history sweeper, and requeues
// jobs that were still queued in the database.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	queued, err := s.db.ListQueuedDownloads()
	if err != nil {
		return fmt.Errorf("failed to requeue pending downloads: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}
	s.wg.Add(1)
	go s.runSweeper(ctx)

	for _, d := range queued {
		select {
		case s.queue <- d.ID:
		default:
			s.log.Warn("queue full while requeueing", "download_id", d.ID)
		}
	}
	s.metrics.QueueDepth.Set(float64(len(s.queue)))

	s.log.Info("scheduler started", "concurrency", s.cfg.Concurrency, "requeued", len(queued))
	s.buf.Infof("worker started with %d slots, %d jobs requeued", s.cfg.Concurrency, len(queued))
	return nil
}

// StopAll drains the queue, skips every queued job and stops accepting
// work. In-flight jobs finish their current extractor step and then fail
// with a cancellation cause. Safe to call when already stopped.
func (s *Scheduler) StopAll() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped, err := s.db.CancelAllQueued()
	if err != nil {
		return 0, err
	}
	for {
		select {
		case <-s.queue:
			continue
		default:
		}
		break
	}
	if s.running {
		s.cancel()
		s.running = false
	}
	s.metrics.QueueDepth.Set(0)

	s.log.Info("scheduler stopped", "skipped", skipped)
	s.buf.Infof("worker stopped, %d queued jobs skipped", skipped)
	return skipped, nil
}

// Restart brings the pool back after a stop. A running pool is left alone.
func (s *Scheduler) Restart() error {
	return s.Start()
}

// Shutdown stops accepting work and waits for in-flight jobs, bounded by
// ctx. Used on process exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.cancel()
		s.running = false
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the live worker pool state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Status{
		WorkerRunning: running,
		QueueSize:     len(s.queue),
		ActiveTasks:   int(s.active.Load()),
		Concurrency:   s.cfg.Concurrency,
	}
}

// Logs returns the most recent scheduler log lines, oldest first.
func (s *Scheduler) Logs(count int) []logbuf.Entry {
	return s.buf.Snapshot(count)
}

// Enqueue queues one download for a track. Without force, a track that is
// already acquired or already has an active job short-circuits into an
// 'already' row instead of queueing. force while a job is active is a
// conflict; the caller decides when the running job is done.
func (s *Scheduler) Enqueue(trackID int64, candidateID *int64, force bool) (*domain.Download, error) {
	track, err := s.db.GetTrackByID(trackID)
	if err != nil {
		return nil, err
	}

	active, err := s.db.GetActiveDownload(trackID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if active != nil {
		if force {
			return nil, ErrJobRunning
		}
		return s.recordAlready(track, candidateID, "download already in progress")
	}

	if !force {
		acquired, err := s.db.IsTrackAcquired(trackID)
		if err != nil {
			return nil, err
		}
		if acquired {
			return s.recordAlready(track, candidateID, "")
		}
	}

	candidate, err := s.resolveCandidate(trackID, candidateID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, ErrWorkerStopped
	}

	download := &domain.Download{
		TrackID:     trackID,
		CandidateID: &candidate.ID,
		Provider:    string(candidate.Provider),
	}
	if err := s.db.CreateDownload(download); err != nil {
		return nil, err
	}

	select {
	case s.queue <- download.ID:
	default:
		msg := "scheduler queue full"
		if err := s.db.FinishDownload(download.ID, store.DownloadResult{
			Status:       domain.DownloadStatusFailed,
			ErrorMessage: &msg,
		}); err != nil {
			s.log.Error("failed to fail overflowed download", "download_id", download.ID, "error", err)
		}
		return nil, fmt.Errorf("scheduler queue full")
	}
	s.metrics.QueueDepth.Set(float64(len(s.queue)))

	s.buf.Infof("download %d queued for %s - %s", download.ID, track.Artists, track.Title)
	return download, nil
}

// Cancel skips a queued job. Cancelling a running job is refused; a
// second cancel of the same job is a no-op.
func (s *Scheduler) Cancel(id int64) error {
	download, err := s.db.GetDownloadByID(id)
	if err != nil {
		return err
	}
	switch download.Status {
	case domain.DownloadStatusQueued:
		if err := s.db.CancelQueuedDownload(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// lost the race with a worker or another cancel
				return nil
			}
			return err
		}
		s.buf.Infof("download %d cancelled", id)
		return nil
	case domain.DownloadStatusRunning:
		return ErrJobRunning
	default:
		return nil
	}
}

func (s *Scheduler) resolveCandidate(trackID int64, candidateID *int64) (*domain.SearchCandidate, error) {
	if candidateID != nil {
		candidate, err := s.db.GetCandidateByID(*candidateID)
		if err != nil {
			return nil, err
		}
		if candidate.TrackID != trackID {
			return nil, fmt.Errorf("candidate %d does not belong to track %d", *candidateID, trackID)
		}
		return candidate, nil
	}
	candidate, err := s.db.GetChosenCandidate(trackID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoCandidate
		}
		return nil, err
	}
	return candidate, nil
}

func (s *Scheduler) recordAlready(track *domain.Track, candidateID *int64, note string) (*domain.Download, error) {
	download := &domain.Download{
		TrackID:     track.ID,
		CandidateID: candidateID,
		Provider:    string(domain.SearchProviderYouTube),
		Status:      domain.DownloadStatusAlready,
	}
	if note != "" {
		download.ErrorMessage = &note
	}
	if file, err := s.db.GetLibraryFileByTrackID(track.ID); err == nil {
		download.Filepath = &file.Filepath
	}
	if err := s.db.InsertTerminalDownload(download); err != nil {
		return nil, err
	}
	s.metrics.DownloadsTotal.WithLabelValues(string(domain.DownloadStatusAlready)).Inc()
	s.buf.Infof("track %d already acquired, skipping", track.ID)
	return download, nil
}

func (s *Scheduler) runSweeper(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.db.TrimDownloadHistory(s.cfg.HistoryKeep)
			if err != nil {
				s.log.Error("history sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				s.metrics.HistoryRowsSwept.Add(float64(swept))
				s.log.Debug("history sweep", "removed", swept)
			}
		}
	}
}
