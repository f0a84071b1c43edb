package httpapp

import (
	"errors"
	"net/http"

	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/normalize"
	"github.com/dperezm/tracknest/internal/ranking"
	"github.com/dperezm/tracknest/internal/store"
	"github.com/dperezm/tracknest/internal/tagging"
)

type trackPayload struct {
	Artists     string  `json:"artists"`
	Title       string  `json:"title"`
	Album       *string `json:"album"`
	DurationMS  *int    `json:"duration_ms"`
	ISRC        *string `json:"isrc"`
	CoverURL    *string `json:"cover_url"`
	Genre       *string `json:"genre"`
	BPM         *int    `json:"bpm"`
	ReleaseDate *string `json:"release_date"`
	Explicit    *bool   `json:"explicit"`
}

type listTracksParams struct {
	Query            string `form:"q"`
	MissingOnly      bool   `form:"missing_only"`
	AcquiredOnly     bool   `form:"acquired_only"`
	SearchedNotFound *bool  `form:"searched_not_found"`
	Limit            int    `form:"limit"`
	Offset           int    `form:"offset"`
}

func (h *Handler) ListTracks(w http.ResponseWriter, r *http.Request) {
	var p listTracksParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	tracks, err := h.db.ListTracks(store.TrackFilter{
		Query:            p.Query,
		MissingOnly:      p.MissingOnly,
		AcquiredOnly:     p.AcquiredOnly,
		SearchedNotFound: p.SearchedNotFound,
		Limit:            p.Limit,
		Offset:           p.Offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, tracks)
}

func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid track id")
		return
	}
	track, err := h.db.GetTrackByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, track)
}

func (h *Handler) CreateTrack(w http.ResponseWriter, r *http.Request) {
	var p trackPayload
	if err := decodeBody(r, &p); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	if p.Artists == "" || p.Title == "" {
		h.badRequest(w, "artists and title are required")
		return
	}

	norm := normalize.Track(p.Artists, p.Title)
	track := &domain.Track{
		Artists:           norm.CleanArtists,
		Title:             norm.CleanTitle,
		NormalizedArtists: norm.NormalizedArtists,
		NormalizedTitle:   norm.NormalizedTitle,
		Album:             p.Album,
		DurationMS:        p.DurationMS,
		ISRC:              p.ISRC,
		CoverURL:          p.CoverURL,
		Genre:             p.Genre,
		BPM:               p.BPM,
		ReleaseDate:       p.ReleaseDate,
	}
	if p.Explicit != nil {
		track.Explicit = *p.Explicit
	}
	if err := h.db.CreateTrack(track, nil); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, track)
}

func (h *Handler) UpdateTrack(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid track id")
		return
	}
	var p trackPayload
	if err := decodeBody(r, &p); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	updates := map[string]interface{}{}
	if p.Artists != "" || p.Title != "" {
		track, err := h.db.GetTrackByID(id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		artists, title := track.Artists, track.Title
		if p.Artists != "" {
			artists = p.Artists
		}
		if p.Title != "" {
			title = p.Title
		}
		norm := normalize.Track(artists, title)
		updates["artists"] = norm.CleanArtists
		updates["title"] = norm.CleanTitle
		updates["normalized_artists"] = norm.NormalizedArtists
		updates["normalized_title"] = norm.NormalizedTitle
	}
	if p.Album != nil {
		updates["album"] = *p.Album
	}
	if p.DurationMS != nil {
		updates["duration_ms"] = *p.DurationMS
	}
	if p.ISRC != nil {
		updates["isrc"] = *p.ISRC
	}
	if p.CoverURL != nil {
		updates["cover_url"] = *p.CoverURL
	}
	if p.Genre != nil {
		updates["genre"] = *p.Genre
	}
	if p.BPM != nil {
		updates["bpm"] = *p.BPM
	}
	if p.ReleaseDate != nil {
		updates["release_date"] = *p.ReleaseDate
	}
	if p.Explicit != nil {
		updates["explicit"] = *p.Explicit
	}
	if len(updates) == 0 {
		h.badRequest(w, "no fields to update")
		return
	}

	if err := h.db.UpdateTrackPartial(id, updates); err != nil {
		h.fail(w, r, err)
		return
	}
	track, err := h.db.GetTrackByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, track)
}

func (h *Handler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid track id")
		return
	}
	if err := h.db.DeleteTrack(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handler) NormalizePreview(w http.ResponseWriter, r *http.Request) {
	artists := r.URL.Query().Get("artists")
	title := r.URL.Query().Get("title")
	if artists == "" && title == "" {
		h.badRequest(w, "artists or title is required")
		return
	}
	h.respond(w, http.StatusOK, normalize.Track(artists, title))
}

func (h *Handler) ListTrackIdentities(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid track id")
		return
	}
	if _, err := h.db.GetTrackByID(id); err != nil {
		h.fail(w, r, err)
		return
	}
	identities, err := h.db.ListIdentities(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, identities)
}

// searchResult is the wire shape of one ranked candidate.
type searchResult struct {
	ExternalID  string             `json:"external_id"`
	URL         string             `json:"url"`
	Title       string             `json:"title"`
	Channel     *string            `json:"channel,omitempty"`
	DurationSec *int               `json:"duration_sec,omitempty"`
	Score       float64            `json:"score"`
	Components  ranking.Components `json:"components"`
	Details     []ranking.Detail   `json:"details"`
}

type searchResponse struct {
	Results    []searchResult           `json:"results"`
	Candidates []domain.SearchCandidate `json:"candidates,omitempty"`
}

type searchParams struct {
	Limit          int  `form:"limit"`
	Persist        bool `form:"persist"`
	PreferExtended bool `form:"prefer_extended"`
}

func (h *Handler) SearchTrackCandidates(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid track id")
		return
	}
	var p searchParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	track, err := h.db.GetTrackByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	scored, persisted, err := h.sched.SearchCandidates(r.Context(), track, p.Limit, p.Persist, p.PreferExtended)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(persisted) > 0 {
		if err := h.backfillCover(track, persisted[0].ExternalID); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	resp := searchResponse{Results: make([]searchResult, len(scored)), Candidates: persisted}
	for i, sc := range scored {
		resp.Results[i] = searchResult{
			ExternalID:  sc.ExternalID,
			URL:         sc.URL,
			Title:       sc.Candidate.Title,
			Channel:     sc.Channel,
			DurationSec: sc.DurationSec,
			Score:       sc.Score,
			Components:  sc.Components,
			Details:     sc.Details,
		}
	}
	h.respond(w, http.StatusOK, resp)
}

// RefreshTrackCover re-resolves a track's cover art. A Spotify-origin
// cover is authoritative and kept; otherwise the chosen candidate's
// thumbnail is derived.
func (h *Handler) RefreshTrackCover(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid track id")
		return
	}
	track, err := h.db.GetTrackByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if track.CoverURL != nil && tagging.IsSpotifyCover(*track.CoverURL) {
		h.respond(w, http.StatusOK, map[string]any{"track": track, "source": "spotify"})
		return
	}

	chosen, err := h.db.GetChosenCandidate(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respond(w, http.StatusUnprocessableEntity, apiError{Error: "no cover source available"})
			return
		}
		h.fail(w, r, err)
		return
	}
	coverURL := youtubeThumbnailURL(chosen.ExternalID)
	if err := h.db.UpdateTrackPartial(id, map[string]interface{}{"cover_url": coverURL}); err != nil {
		h.fail(w, r, err)
		return
	}
	track.CoverURL = &coverURL
	h.respond(w, http.StatusOK, map[string]any{"track": track, "source": "candidate"})
}

func youtubeThumbnailURL(externalID string) string {
	return "https://i.ytimg.com/vi/" + externalID + "/hqdefault.jpg"
}

// backfillCover derives a cover from a candidate's thumbnail when the
// track has none. An existing cover is never replaced here.
func (h *Handler) backfillCover(track *domain.Track, externalID string) error {
	if track.CoverURL != nil && *track.CoverURL != "" {
		return nil
	}
	if externalID == "" {
		return nil
	}
	coverURL := youtubeThumbnailURL(externalID)
	if err := h.db.UpdateTrackPartial(track.ID, map[string]interface{}{"cover_url": coverURL}); err != nil {
		return err
	}
	track.CoverURL = &coverURL
	return nil
}

type trackWithPlaylists struct {
	domain.Track
	Playlists []store.PlaylistRef `json:"playlists"`
	Acquired  bool                `json:"acquired"`
}

func (h *Handler) ListTracksWithPlaylistInfo(w http.ResponseWriter, r *http.Request) {
	var p listTracksParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	tracks, err := h.db.ListTracks(store.TrackFilter{
		Query:            p.Query,
		MissingOnly:      p.MissingOnly,
		AcquiredOnly:     p.AcquiredOnly,
		SearchedNotFound: p.SearchedNotFound,
		Limit:            p.Limit,
		Offset:           p.Offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ids := make([]int64, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	memberships, err := h.db.ListTrackMemberships(ids)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]trackWithPlaylists, len(tracks))
	for i, t := range tracks {
		acquired, err := h.db.IsTrackAcquired(t.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		refs := memberships[t.ID]
		if refs == nil {
			refs = []store.PlaylistRef{}
		}
		out[i] = trackWithPlaylists{Track: *t, Playlists: refs, Acquired: acquired}
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) ListTracksReadyForDownload(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.db.ListTracksReadyForDownload()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, tracks)
}

func (h *Handler) ExportTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.db.ListTracks(store.TrackFilter{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="tracks.json"`)
	h.respond(w, http.StatusOK, tracks)
}

type importSummary struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportTracks ingests a JSON track list. Tracks that already exist by
// ISRC or normalized pair are skipped, making export/import a round trip.
func (h *Handler) ImportTracks(w http.ResponseWriter, r *http.Request) {
	var payload []trackPayload
	if err := decodeBody(r, &payload); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	var summary importSummary
	for _, p := range payload {
		if p.Artists == "" || p.Title == "" {
			summary.Skipped++
			continue
		}
		norm := normalize.Track(p.Artists, p.Title)
		if _, err := h.db.FindDuplicateTrack(domain.ProviderManual, "",
			p.ISRC, norm.NormalizedArtists, norm.NormalizedTitle); err == nil {
			summary.Skipped++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			h.fail(w, r, err)
			return
		}

		track := &domain.Track{
			Artists:           norm.CleanArtists,
			Title:             norm.CleanTitle,
			NormalizedArtists: norm.NormalizedArtists,
			NormalizedTitle:   norm.NormalizedTitle,
			Album:             p.Album,
			DurationMS:        p.DurationMS,
			ISRC:              p.ISRC,
			CoverURL:          p.CoverURL,
			Genre:             p.Genre,
			BPM:               p.BPM,
			ReleaseDate:       p.ReleaseDate,
		}
		if p.Explicit != nil {
			track.Explicit = *p.Explicit
		}
		if err := h.db.CreateTrack(track, nil); err != nil {
			h.fail(w, r, err)
			return
		}
		summary.Imported++
	}
	h.respond(w, http.StatusOK, summary)
}
