package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/extractor"
	"github.com/dperezm/tracknest/internal/filesystem"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/store"
	"github.com/dperezm/tracknest/internal/tagging"
	"github.com/dperezm/tracknest/internal/timestamps"
)

func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.metrics.QueueDepth.Set(float64(len(s.queue)))
			s.processJob(ctx, id)
		}
	}
}

// processJob runs the full acquisition pipeline for one download id. The
// extractor subprocess is never killed mid-flight by a stop; the stop is
// observed between pipeline steps.
func (s *Scheduler) processJob(ctx context.Context, id int64) {
	if err := s.db.MarkDownloadRunning(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.buf.Debugf("download %d no longer queued, dropping", id)
			return
		}
		s.log.Error("failed to mark download running", "download_id", id, "error", err)
		return
	}

	s.active.Add(1)
	s.metrics.ActiveWorkers.Inc()
	started := time.Now()
	defer func() {
		s.active.Add(-1)
		s.metrics.ActiveWorkers.Dec()
		if r := recover(); r != nil {
			msg := fmt.Sprintf("worker panic: %v", r)
			s.log.Error("worker panic", "download_id", id, "panic", r)
			s.finishJob(id, started, store.DownloadResult{
				Status:       domain.DownloadStatusFailed,
				ErrorMessage: &msg,
			})
		}
	}()

	download, err := s.db.GetDownloadByID(id)
	if err != nil {
		s.log.Error("failed to load download", "download_id", id, "error", err)
		return
	}
	track, err := s.db.GetTrackByID(download.TrackID)
	if err != nil {
		s.failJob(id, started, fmt.Sprintf("track %d not found", download.TrackID))
		return
	}

	log := s.log.WithDownload(id, track.ID)
	s.buf.Infof("download %d started: %s - %s", id, track.Artists, track.Title)

	if s.cfg.SimulateSeconds > 0 {
		time.Sleep(time.Duration(s.cfg.SimulateSeconds * float64(time.Second)))
		s.finishJob(id, started, store.DownloadResult{Status: domain.DownloadStatusDone})
		s.buf.Infof("download %d simulated", id)
		return
	}

	candidate, err := s.resolveCandidate(track.ID, download.CandidateID)
	if err != nil {
		s.failJob(id, started, "no candidate resolved: "+err.Error())
		return
	}

	base := filesystem.Sanitize(track.Artists + " - " + track.Title)
	target := filesystem.UniquePath(filepath.Join(s.cfg.LibraryDir, base+"."+s.cfg.PreferredFormat))
	baseName := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))

	plan := tagging.PlanCover(track.CoverURL, s.cfg.EmbedThumbnail)

	// Extraction and tagging happen in a staging directory; the file is
	// published into the library only once it is complete.
	staging := filepath.Join(s.cfg.LibraryDir, constants.StagingDirName)

	dctx, cancelDl := context.WithTimeout(context.Background(), s.cfg.DownloadTimeout)
	result, err := s.extractor.Download(dctx, candidate.URL, extractor.DownloadOptions{
		OutputDir:       staging,
		BaseName:        baseName,
		PreferredFormat: s.cfg.PreferredFormat,
		EmbedThumbnail:  plan.EmbedThumbnail,
		CookiesFile:     s.cfg.CookiesFile,
		ExtractorArgs:   s.cfg.ExtractorArgs,
		Metadata: map[string]string{
			"artist": track.Artists,
			"title":  track.Title,
		},
	})
	cancelDl()
	if err != nil {
		s.failJob(id, started, err.Error())
		s.buf.Errorf("download %d failed: %v", id, err)
		return
	}

	if ctx.Err() != nil {
		s.failJob(id, started, "worker stopped")
		s.buf.Warnf("download %d aborted after extraction: worker stopped", id)
		return
	}

	cover := s.fetchCover(plan, log)
	if err := s.tagger.TagFile(result.Filepath, trackTags(track), cover); err != nil {
		s.failJob(id, started, "tagging failed: "+err.Error())
		s.buf.Errorf("download %d tagging failed: %v", id, err)
		return
	}

	checksum := result.Checksum
	if sum, err := filesystem.ChecksumSHA256(result.Filepath); err == nil {
		checksum = sum
	} else {
		log.Warn("checksum recompute failed", "error", err)
	}

	final := filesystem.UniquePath(filepath.Join(s.cfg.LibraryDir, filepath.Base(result.Filepath)))
	if err := filesystem.MoveFile(result.Filepath, final); err != nil {
		s.failJob(id, started, "failed to publish file: "+err.Error())
		s.buf.Errorf("download %d publish failed: %v", id, err)
		return
	}
	result.Filepath = final

	mtime, created := s.stampTimes(track)
	if err := timestamps.Apply(result.Filepath, mtime, created); err != nil {
		log.Warn("failed to stamp file times", "error", err)
	}

	file := &domain.LibraryFile{
		TrackID:   track.ID,
		Filepath:  result.Filepath,
		Checksum:  &checksum,
		Container: result.Container,
	}
	if info, err := os.Stat(result.Filepath); err == nil {
		size := info.Size()
		mtime := info.ModTime().UTC()
		file.FileSize = &size
		file.FileMtime = &mtime
	}
	if err := s.db.UpsertLibraryFile(file); err != nil {
		s.failJob(id, started, "failed to record library file: "+err.Error())
		return
	}
	if err := s.db.SetSearchedNotFound(track.ID, false); err != nil {
		log.Warn("failed to clear not-found flag", "error", err)
	}

	format := strings.TrimPrefix(filepath.Ext(result.Filepath), ".")
	s.finishJob(id, started, store.DownloadResult{
		Status:        domain.DownloadStatusDone,
		CandidateID:   &candidate.ID,
		Filepath:      &result.Filepath,
		Format:        &format,
		FilesizeBytes: file.FileSize,
		Checksum:      &checksum,
	})
	s.buf.Infof("download %d done: %s", id, result.Filepath)
	log.Info("download finished", "filepath", result.Filepath, "container", result.Container)
}

func (s *Scheduler) failJob(id int64, started time.Time, message string) {
	s.finishJob(id, started, store.DownloadResult{
		Status:       domain.DownloadStatusFailed,
		ErrorMessage: &message,
	})
}

func (s *Scheduler) finishJob(id int64, started time.Time, result store.DownloadResult) {
	if err := s.db.FinishDownload(id, result); err != nil {
		s.log.Error("failed to finish download", "download_id", id, "error", err)
		return
	}
	s.metrics.DownloadsTotal.WithLabelValues(string(result.Status)).Inc()
	s.metrics.DownloadDuration.Observe(time.Since(started).Seconds())
}

func (s *Scheduler) fetchCover(plan tagging.CoverPlan, log *logger.Logger) []byte {
	if plan.URL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.images.Timeout)
	defer cancel()
	cover, err := tagging.FetchCover(ctx, s.images, plan)
	if err != nil {
		log.Warn("cover fetch failed", "url", plan.URL, "error", err)
		return nil
	}
	return cover
}

// stampTimes resolves the file times. The modification time follows the
// newest playlist added_at, then the provider added date, then the
// release date, then now. Creation time follows the release date and
// falls back to the modification time.
func (s *Scheduler) stampTimes(track *domain.Track) (mtime, created time.Time) {
	mtime = time.Now().UTC()
	if added, err := s.db.LatestTrackAddedAt(track.ID); err == nil && added != nil {
		mtime = added.UTC()
	} else if track.SpotifyAddedAt != nil {
		mtime = track.SpotifyAddedAt.UTC()
	} else if track.ReleaseDate != nil {
		if ts, ok := timestamps.ParseReleaseDate(*track.ReleaseDate); ok {
			mtime = ts
		}
	}

	created = mtime
	if track.ReleaseDate != nil {
		if ts, ok := timestamps.ParseReleaseDate(*track.ReleaseDate); ok {
			created = ts
		}
	}
	return mtime, created
}

func trackTags(track *domain.Track) tagging.TrackTags {
	return tagging.TrackTags{
		Artists:     track.Artists,
		Title:       track.Title,
		Album:       track.Album,
		Genre:       track.Genre,
		BPM:         track.BPM,
		ISRC:        track.ISRC,
		ReleaseDate: track.ReleaseDate,
	}
}
