package httpapp

import (
	"net/http"
)

type enqueueParams struct {
	TrackID     int64  `form:"track_id"`
	CandidateID *int64 `form:"candidate_id"`
	Force       bool   `form:"force"`
}

func (h *Handler) EnqueueDownload(w http.ResponseWriter, r *http.Request) {
	var p enqueueParams
	if err := h.decodeQuery(r, &p); err != nil || p.TrackID < 1 {
		h.badRequest(w, "track_id is required")
		return
	}
	download, err := h.sched.Enqueue(p.TrackID, p.CandidateID, p.Force)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusAccepted, download)
}

func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid download id")
		return
	}
	if err := h.sched.Cancel(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) StopAllDownloads(w http.ResponseWriter, r *http.Request) {
	skipped, err := h.sched.StopAll()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"status": "stopped", "skipped": skipped})
}

func (h *Handler) RestartWorker(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.Restart(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "running"})
}

func (h *Handler) DownloadStatus(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, h.sched.Status())
}

type logsParams struct {
	Count int `form:"count"`
}

func (h *Handler) DownloadLogs(w http.ResponseWriter, r *http.Request) {
	var p logsParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	h.respond(w, http.StatusOK, h.sched.Logs(p.Count))
}

type listDownloadsParams struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	var p listDownloadsParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	downloads, err := h.db.ListDownloads(p.Status, p.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, downloads)
}

func (h *Handler) ListDownloadsWithTracks(w http.ResponseWriter, r *http.Request) {
	var p listDownloadsParams
	if err := h.decodeQuery(r, &p); err != nil {
		h.badRequest(w, "invalid query parameters")
		return
	}
	downloads, err := h.db.ListDownloadsWithTracks(p.Status, p.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, downloads)
}

func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid download id")
		return
	}
	download, err := h.db.GetDownloadByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, download)
}
