package httpapp

import (
	"net/http"
)

type listPlaylistsParams struct {
	SelectedOnly bool `form:"selected_only"`
}

func (h *Handler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	var p listPlaylistsParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	playlists, err := h.db.ListPlaylists(p.SelectedOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, playlists)
}

func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid playlist id")
		return
	}
	playlist, err := h.db.GetPlaylistByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, playlist)
}

func (h *Handler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid playlist id")
		return
	}
	if err := h.db.DeletePlaylist(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handler) ListPlaylistEntries(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid playlist id")
		return
	}
	if _, err := h.db.GetPlaylistByID(id); err != nil {
		h.fail(w, r, err)
		return
	}
	tracks, err := h.db.ListPlaylistTracks(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, tracks)
}

func (h *Handler) AutoDownloadPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid playlist id")
		return
	}
	result, err := h.sched.AutoDownload(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusAccepted, result)
}

func (h *Handler) RetryNotFoundPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid playlist id")
		return
	}
	result, err := h.sched.RetryNotFound(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusAccepted, result)
}

func (h *Handler) PlaylistStats(w http.ResponseWriter, r *http.Request) {
	var p listPlaylistsParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	stats, err := h.db.ListPlaylistStats(p.SelectedOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, stats)
}

type membershipsPayload struct {
	TrackIDs []int64 `json:"track_ids"`
}

func (h *Handler) PlaylistMemberships(w http.ResponseWriter, r *http.Request) {
	var p membershipsPayload
	if err := decodeBody(r, &p); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	memberships, err := h.db.ListTrackMemberships(p.TrackIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, memberships)
}

type discoverParams struct {
	AccountID int64 `form:"account_id"`
	Persist   bool  `form:"persist"`
}

func (h *Handler) SpotifyDiscover(w http.ResponseWriter, r *http.Request) {
	var p discoverParams
	if err := h.decodeQuery(r, &p); err != nil || p.AccountID < 1 {
		h.badRequest(w, "account_id is required")
		return
	}
	playlists, err := h.ingest.Discover(r.Context(), p.AccountID, p.Persist)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, playlists)
}

type selectPayload struct {
	AccountID           int64    `json:"account_id"`
	ProviderPlaylistIDs []string `json:"provider_playlist_ids"`
}

func (h *Handler) SpotifySelect(w http.ResponseWriter, r *http.Request) {
	var p selectPayload
	if err := decodeBody(r, &p); err != nil || p.AccountID < 1 {
		h.badRequest(w, "account_id is required")
		return
	}
	if err := h.ingest.Select(p.AccountID, p.ProviderPlaylistIDs); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"status":   "selected",
		"selected": len(p.ProviderPlaylistIDs),
	})
}

type syncParams struct {
	AccountID int64 `form:"account_id"`
	Force     bool  `form:"force"`
}

func (h *Handler) SpotifySync(w http.ResponseWriter, r *http.Request) {
	var p syncParams
	if err := h.decodeQuery(r, &p); err != nil || p.AccountID < 1 {
		h.badRequest(w, "account_id is required")
		return
	}
	summary, err := h.ingest.Sync(r.Context(), p.AccountID, p.Force)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, summary)
}
