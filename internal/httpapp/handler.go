// Package httpapp exposes the JSON API under /api/v1. Handlers stay thin:
// they decode, call into the owning component and map errors to status
// codes. No business logic lives here.
package httpapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/form/v4"
	"github.com/google/uuid"

	"github.com/dperezm/tracknest/internal/ingest"
	"github.com/dperezm/tracknest/internal/logger"
	"github.com/dperezm/tracknest/internal/metrics"
	"github.com/dperezm/tracknest/internal/scheduler"
	"github.com/dperezm/tracknest/internal/spotify"
	"github.com/dperezm/tracknest/internal/store"
)

// Config carries the handler-facing slice of the app configuration.
type Config struct {
	AppName     string
	Version     string
	LibraryDir  string
	CookiesFile string
	CORSOrigins []string
}

type Handler struct {
	db      *store.DB
	sched   *scheduler.Scheduler
	ingest  *ingest.Ingestor
	auth    *spotify.Authenticator
	metrics *metrics.Metrics
	log     *logger.Logger
	form    *form.Decoder
	cfg     Config
}

func NewHandler(db *store.DB, sched *scheduler.Scheduler, ing *ingest.Ingestor,
	auth *spotify.Authenticator, m *metrics.Metrics, log *logger.Logger, cfg Config) *Handler {
	decoder := form.NewDecoder()
	decoder.SetTagName("form")
	return &Handler{
		db:      db,
		sched:   sched,
		ingest:  ing,
		auth:    auth,
		metrics: m,
		log:     log.WithComponent("http"),
		form:    decoder,
		cfg:     cfg,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/info", h.Info)

	r.Route("/tracks", func(r chi.Router) {
		r.Get("/", h.ListTracks)
		r.Post("/", h.CreateTrack)
		r.Get("/normalize/preview", h.NormalizePreview)
		r.Get("/with_playlist_info", h.ListTracksWithPlaylistInfo)
		r.Get("/ready_for_download", h.ListTracksReadyForDownload)
		r.Get("/export", h.ExportTracks)
		r.Post("/import", h.ImportTracks)
		r.Get("/{id}", h.GetTrack)
		r.Put("/{id}", h.UpdateTrack)
		r.Delete("/{id}", h.DeleteTrack)
		r.Get("/{id}/identities", h.ListTrackIdentities)
		r.Get("/{id}/youtube/search", h.SearchTrackCandidates)
		r.Post("/{id}/cover/refresh", h.RefreshTrackCover)
	})

	r.Route("/candidates", func(r chi.Router) {
		r.Get("/", h.ListCandidates)
		r.Post("/", h.CreateCandidate)
		r.Get("/enriched", h.ListCandidatesEnriched)
		r.Delete("/{id}", h.DeleteCandidate)
		r.Post("/{id}/choose", h.ChooseCandidate)
	})

	r.Route("/downloads", func(r chi.Router) {
		r.Get("/", h.ListDownloads)
		r.Get("/with_tracks", h.ListDownloadsWithTracks)
		r.Post("/enqueue", h.EnqueueDownload)
		r.Post("/cancel/{id}", h.CancelDownload)
		r.Post("/stop_all", h.StopAllDownloads)
		r.Post("/restart_worker", h.RestartWorker)
		r.Get("/status", h.DownloadStatus)
		r.Get("/logs", h.DownloadLogs)
		r.Get("/{id}", h.GetDownload)
	})

	r.Route("/library/files", func(r chi.Router) {
		r.Get("/", h.ListLibraryFiles)
		r.Post("/scan", h.ScanLibrary)
		r.Post("/reindex_from_tracks", h.ReindexFromTracks)
		r.Post("/resync", h.ResyncLibrary)
		r.Get("/{id}", h.GetLibraryFile)
		r.Delete("/{id}", h.DeleteLibraryFile)
		r.Get("/{id}/download", h.DownloadLibraryFile)
		r.Get("/{id}/stream", h.StreamLibraryFile)
		r.Get("/{id}/reveal", h.RevealLibraryFile)
	})

	r.Route("/playlists", func(r chi.Router) {
		r.Get("/", h.ListPlaylists)
		r.Get("/stats", h.PlaylistStats)
		r.Post("/memberships", h.PlaylistMemberships)
		r.Get("/spotify/discover", h.SpotifyDiscover)
		r.Post("/spotify/select", h.SpotifySelect)
		r.Post("/spotify/sync", h.SpotifySync)
		r.Get("/{id}", h.GetPlaylist)
		r.Delete("/{id}", h.DeletePlaylist)
		r.Get("/{id}/entries", h.ListPlaylistEntries)
		r.Post("/{id}/auto_download", h.AutoDownloadPlaylist)
		r.Post("/{id}/retry_not_found", h.RetryNotFoundPlaylist)
	})

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/tokens", h.ListOAuthTokens)
		r.Get("/spotify/authorize", h.SpotifyAuthorize)
		r.Get("/spotify/callback", h.SpotifyCallback)
		r.Post("/spotify/refresh", h.SpotifyRefresh)
		r.Post("/spotify/ensure_account", h.SpotifyEnsureAccount)
	})

	r.Get("/cookies/validate", h.ValidateCookies)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{
		"name":    h.cfg.AppName,
		"version": h.cfg.Version,
	})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

type apiError struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// fail maps component errors onto status codes. Unknown errors become a
// 500 with a correlation id; internals never reach the response body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respond(w, http.StatusNotFound, apiError{Error: "not found"})
	case errors.Is(err, scheduler.ErrJobRunning),
		errors.Is(err, store.ErrDownloadActive):
		h.respond(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, scheduler.ErrWorkerStopped):
		h.respond(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, scheduler.ErrNoCandidate):
		h.respond(w, http.StatusUnprocessableEntity, apiError{Error: err.Error()})
	case errors.Is(err, spotify.ErrNotConnected):
		h.respond(w, http.StatusBadRequest, apiError{Error: err.Error()})
	default:
		id := uuid.NewString()
		h.log.Error("request failed", "correlation_id", id,
			"method", r.Method, "path", r.URL.Path, "error", err)
		h.respond(w, http.StatusInternalServerError, apiError{Error: "internal error", CorrelationID: id})
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.respond(w, http.StatusBadRequest, apiError{Error: msg})
}

func urlID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// decodeQuery binds URL query parameters onto a tagged struct.
func (h *Handler) decodeQuery(r *http.Request, dst any) error {
	return h.form.Decode(dst, r.URL.Query())
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close() //nolint:errcheck // deferred cleanup
	return json.NewDecoder(r.Body).Decode(dst)
}

// CORS allows the configured browser origins. An empty allow-list
// disables cross-origin access entirely.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
