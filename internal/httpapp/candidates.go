package httpapp

import (
	"net/http"

	"github.com/dperezm/tracknest/internal/domain"
)

type listCandidatesParams struct {
	TrackID int64 `form:"track_id"`
}

func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	var p listCandidatesParams
	if err := h.decodeQuery(r, &p); err != nil || p.TrackID < 1 {
		h.badRequest(w, "track_id is required")
		return
	}
	candidates, err := h.db.ListCandidates(p.TrackID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, candidates)
}

func (h *Handler) ListCandidatesEnriched(w http.ResponseWriter, r *http.Request) {
	var p listCandidatesParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	candidates, err := h.db.ListCandidatesEnriched(p.TrackID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, candidates)
}

type candidatePayload struct {
	TrackID     int64   `json:"track_id"`
	ExternalID  string  `json:"external_id"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Channel     *string `json:"channel"`
	DurationSec *int    `json:"duration_sec"`
}

// CreateCandidate adds a manually supplied candidate. It replaces the
// track's candidate set with just this entry, pre-chosen, so a pasted
// URL can be downloaded without a search.
func (h *Handler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var p candidatePayload
	if err := decodeBody(r, &p); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	if p.TrackID < 1 || p.URL == "" {
		h.badRequest(w, "track_id and url are required")
		return
	}
	if _, err := h.db.GetTrackByID(p.TrackID); err != nil {
		h.fail(w, r, err)
		return
	}

	candidate := domain.SearchCandidate{
		TrackID:     p.TrackID,
		Provider:    domain.SearchProviderYouTube,
		ExternalID:  p.ExternalID,
		URL:         p.URL,
		Title:       p.Title,
		Channel:     p.Channel,
		DurationSec: p.DurationSec,
	}
	rows := []domain.SearchCandidate{candidate}
	if err := h.db.ReplaceCandidates(p.TrackID, rows); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.db.ChooseCandidate(p.TrackID, rows[0].ID); err != nil {
		h.fail(w, r, err)
		return
	}
	rows[0].Chosen = true
	h.respond(w, http.StatusCreated, rows[0])
}

func (h *Handler) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid candidate id")
		return
	}
	if err := h.db.DeleteCandidate(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handler) ChooseCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid candidate id")
		return
	}
	candidate, err := h.db.GetCandidateByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.db.ChooseCandidate(candidate.TrackID, candidate.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	candidate.Chosen = true
	if track, err := h.db.GetTrackByID(candidate.TrackID); err == nil {
		if err := h.backfillCover(track, candidate.ExternalID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.respond(w, http.StatusOK, candidate)
}
