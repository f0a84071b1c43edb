package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/extractor"
	"github.com/dperezm/tracknest/internal/ranking"
	"github.com/dperezm/tracknest/internal/store"
)

// BulkResult is the immediate answer of an asynchronous playlist run.
type BulkResult struct {
	Status      string `json:"status"`
	TotalTracks int    `json:"total_tracks"`
}

// SearchCandidates searches the extractor for a track, ranks the results
// and optionally persists the top slice as the track's candidate set.
// Persisted rows come back with their ids so the caller can choose one.
// preferExtended steers retrieval toward extended versions by widening
// the query; the scoring gates stay the same.
func (s *Scheduler) SearchCandidates(ctx context.Context, track *domain.Track, limit int, persist, preferExtended bool) ([]ranking.Scored, []domain.SearchCandidate, error) {
	if limit < 1 {
		limit = s.cfg.SearchLimit
	}
	query := ranking.Query{
		Artists:    track.Artists,
		Title:      track.Title,
		DurationMS: track.DurationMS,
	}
	scoreFn := func(rc extractor.RawCandidate) float64 {
		return s.ranker.Score(query, toRankCandidate(rc)).Score
	}

	text := strings.TrimSpace(track.Artists + " " + track.Title)
	if preferExtended {
		text += " extended mix"
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()
	started := time.Now()
	raw, err := s.extractor.Search(sctx, text, extractor.SearchOptions{
		PageSize:  s.cfg.SearchPageSize,
		MaxPages:  s.cfg.SearchMaxPages,
		StopScore: s.cfg.SearchStopScore,
		ScoreFn:   scoreFn,
	})
	s.metrics.SearchesTotal.Inc()
	s.metrics.SearchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]ranking.Candidate, len(raw))
	for i, rc := range raw {
		candidates[i] = toRankCandidate(rc)
	}
	scored := s.ranker.Rank(query, candidates)
	s.metrics.CandidatesScored.Add(float64(len(scored)))
	if len(scored) > limit {
		scored = scored[:limit]
	}

	if !persist {
		return scored, nil, nil
	}
	persisted, err := s.persistCandidates(track.ID, scored)
	if err != nil {
		return nil, nil, err
	}
	return scored, persisted, nil
}

func (s *Scheduler) persistCandidates(trackID int64, scored []ranking.Scored) ([]domain.SearchCandidate, error) {
	rows := make([]domain.SearchCandidate, len(scored))
	for i, sc := range scored {
		breakdown := scoreBreakdownJSON(sc)
		rows[i] = domain.SearchCandidate{
			TrackID:        trackID,
			Provider:       domain.SearchProviderYouTube,
			ExternalID:     sc.ExternalID,
			URL:            sc.URL,
			Title:          sc.Candidate.Title,
			Channel:        sc.Channel,
			DurationSec:    sc.DurationSec,
			Score:          sc.Score,
			ScoreBreakdown: breakdown,
		}
	}
	if err := s.db.ReplaceCandidates(trackID, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func scoreBreakdownJSON(sc ranking.Scored) *string {
	data, err := json.Marshal(struct {
		Components ranking.Components `json:"components"`
		Details    []ranking.Detail   `json:"details"`
	}{sc.Components, sc.Details})
	if err != nil {
		return nil
	}
	out := string(data)
	return &out
}

func toRankCandidate(rc extractor.RawCandidate) ranking.Candidate {
	return ranking.Candidate{
		ExternalID:  rc.ExternalID,
		URL:         rc.URL,
		Title:       rc.Title,
		Channel:     rc.Channel,
		DurationSec: rc.DurationSec,
	}
}

// AutoDownload kicks off the bulk acquisition path for one playlist and
// returns immediately. Searches run under their own parallelism bound;
// enqueues follow playlist position order.
func (s *Scheduler) AutoDownload(playlistID int64) (*BulkResult, error) {
	if _, err := s.db.GetPlaylistByID(playlistID); err != nil {
		return nil, err
	}
	tracks, err := s.db.ListPlaylistTracks(playlistID)
	if err != nil {
		return nil, err
	}
	go s.runBulk(tracks)
	return &BulkResult{Status: "processing", TotalTracks: len(tracks)}, nil
}

// RetryNotFound clears the not-found annotation for a playlist's tracks
// and runs the bulk path again for just those.
func (s *Scheduler) RetryNotFound(playlistID int64) (*BulkResult, error) {
	if _, err := s.db.GetPlaylistByID(playlistID); err != nil {
		return nil, err
	}
	tracks, err := s.db.ListPlaylistTracks(playlistID)
	if err != nil {
		return nil, err
	}
	var retry []*domain.Track
	for _, track := range tracks {
		if !track.SearchedNotFound {
			continue
		}
		if err := s.db.SetSearchedNotFound(track.ID, false); err != nil {
			return nil, err
		}
		track.SearchedNotFound = false
		retry = append(retry, track)
	}
	go s.runBulk(retry)
	return &BulkResult{Status: "processing", TotalTracks: len(retry)}, nil
}

func (s *Scheduler) runBulk(tracks []*domain.Track) {
	ctx := context.Background()
	sem := semaphore.NewWeighted(s.cfg.SearchParallelism)
	ready := make([]bool, len(tracks))
	var wg sync.WaitGroup

	for i, track := range tracks {
		acquired, err := s.db.IsTrackAcquired(track.ID)
		if err != nil {
			s.log.Error("bulk acquired check failed", "track_id", track.ID, "error", err)
			continue
		}
		if acquired {
			// Enqueue records the 'already' row.
			ready[i] = true
			continue
		}
		if track.SearchedNotFound {
			continue
		}
		if _, err := s.db.GetChosenCandidate(track.ID); err == nil {
			ready[i] = true
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("bulk chosen lookup failed", "track_id", track.ID, "error", err)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(i int, track *domain.Track) {
			defer wg.Done()
			defer sem.Release(1)
			ready[i] = s.searchAndChoose(ctx, track)
		}(i, track)
	}
	wg.Wait()

	for i, track := range tracks {
		if !ready[i] {
			continue
		}
		if _, err := s.Enqueue(track.ID, nil, false); err != nil && !errors.Is(err, ErrNoCandidate) {
			s.buf.Warnf("bulk enqueue for track %d failed: %v", track.ID, err)
		}
	}
}

// searchAndChoose finds and auto-chooses the best candidate for a track.
// A best score under the autochoose floor annotates the track instead.
func (s *Scheduler) searchAndChoose(ctx context.Context, track *domain.Track) bool {
	scored, persisted, err := s.SearchCandidates(ctx, track, s.cfg.SearchLimit, true, false)
	if err != nil {
		s.buf.Errorf("search for track %d failed: %v", track.ID, err)
		return false
	}
	if len(scored) == 0 || len(persisted) == 0 || scored[0].Score < s.cfg.MinAutochooseScore {
		if err := s.db.SetSearchedNotFound(track.ID, true); err != nil {
			s.log.Error("failed to annotate not-found", "track_id", track.ID, "error", err)
		}
		s.buf.Infof("track %d: no candidate above %.0f, marked not found", track.ID, s.cfg.MinAutochooseScore)
		return false
	}
	if err := s.db.ChooseCandidate(track.ID, persisted[0].ID); err != nil {
		s.buf.Errorf("autochoose for track %d failed: %v", track.ID, err)
		return false
	}
	s.buf.Infof("track %d: autochose %q (%.0f)", track.ID, persisted[0].Title, scored[0].Score)
	return true
}
