package httpapp

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dperezm/tracknest/internal/constants"
	"github.com/dperezm/tracknest/internal/domain"
	"github.com/dperezm/tracknest/internal/filesystem"
	"github.com/dperezm/tracknest/internal/normalize"
	"github.com/dperezm/tracknest/internal/store"
	"github.com/dperezm/tracknest/internal/tagging"
)

var audioExtensions = map[string]bool{
	constants.ExtMP3:  true,
	constants.ExtM4A:  true,
	constants.ExtFLAC: true,
	constants.ExtOpus: true,
}

func (h *Handler) ListLibraryFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.db.ListLibraryFiles()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, files)
}

func (h *Handler) GetLibraryFile(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid file id")
		return
	}
	file, err := h.db.GetLibraryFileByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, file)
}

func (h *Handler) DeleteLibraryFile(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid file id")
		return
	}
	if err := h.db.DeleteLibraryFileByID(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handler) DownloadLibraryFile(w http.ResponseWriter, r *http.Request) {
	h.serveLibraryFile(w, r, true)
}

func (h *Handler) StreamLibraryFile(w http.ResponseWriter, r *http.Request) {
	h.serveLibraryFile(w, r, false)
}

// serveLibraryFile serves the audio bytes with range support. The ETag is
// strong and derived from size and mtime, so a re-tagged file invalidates
// caches.
func (h *Handler) serveLibraryFile(w http.ResponseWriter, r *http.Request, attachment bool) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid file id")
		return
	}
	file, err := h.db.GetLibraryFileByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	f, err := os.Open(file.Filepath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.respond(w, http.StatusNotFound, apiError{Error: "file missing on disk"})
			return
		}
		h.fail(w, r, err)
		return
	}
	defer f.Close() //nolint:errcheck // read-only handle

	info, err := f.Stat()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := filepath.Base(file.Filepath)
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename=%q`, disposition, name))
	w.Header().Set("Content-Type", containerMIME(file.Filepath))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("ETag", fmt.Sprintf(`"%x-%x"`, info.Size(), info.ModTime().UnixNano()))

	http.ServeContent(w, r, name, info.ModTime(), f)
}

func containerMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtMP3:
		return constants.MimeTypeMP3
	case constants.ExtM4A, constants.ExtMP4:
		return constants.MimeTypeMP4
	case constants.ExtFLAC:
		return constants.MimeTypeFLAC
	default:
		return "application/octet-stream"
	}
}

func (h *Handler) RevealLibraryFile(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		h.badRequest(w, "invalid file id")
		return
	}
	file, err := h.db.GetLibraryFileByID(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, statErr := os.Stat(file.Filepath)
	h.respond(w, http.StatusOK, map[string]any{
		"filepath": file.Filepath,
		"exists":   statErr == nil,
	})
}

type scanSummary struct {
	Scanned   int `json:"scanned"`
	Attached  int `json:"attached"`
	Updated   int `json:"updated"`
	Unmatched int `json:"unmatched"`
}

// ScanLibrary walks the library directory and reconciles files into rows.
// Known paths get their size and mtime refreshed; unknown files are
// matched against the catalog by their embedded tags.
func (h *Handler) ScanLibrary(w http.ResponseWriter, r *http.Request) {
	var summary scanSummary
	err := filepath.WalkDir(h.cfg.LibraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == constants.StagingDirName {
				return fs.SkipDir
			}
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		summary.Scanned++

		info, err := d.Info()
		if err != nil {
			return err
		}

		existing, err := h.db.GetLibraryFileByPath(path)
		if err == nil {
			if err := h.upsertFileRow(existing.TrackID, path, info); err != nil {
				return err
			}
			summary.Updated++
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		trackID, ok := h.matchTrackByTags(path)
		if !ok {
			summary.Unmatched++
			return nil
		}
		if err := h.upsertFileRow(trackID, path, info); err != nil {
			return err
		}
		summary.Attached++
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, summary)
}

// matchTrackByTags reads the embedded artist and title and resolves them
// against the catalog the same way the sync dedups incoming tracks.
func (h *Handler) matchTrackByTags(path string) (int64, bool) {
	md, err := tagging.ReadFileTags(path)
	if err != nil {
		h.log.Warn("failed to read tags during scan", "path", path, "error", err)
		return 0, false
	}
	if md.Artist() == "" || md.Title() == "" {
		return 0, false
	}
	norm := normalize.Track(md.Artist(), md.Title())
	track, err := h.db.FindDuplicateTrack(domain.ProviderManual, "",
		nil, norm.NormalizedArtists, norm.NormalizedTitle)
	if err != nil {
		return 0, false
	}
	return track.ID, true
}

func (h *Handler) upsertFileRow(trackID int64, path string, info fs.FileInfo) error {
	size := info.Size()
	mtime := info.ModTime().UTC()
	return h.db.UpsertLibraryFile(&domain.LibraryFile{
		TrackID:   trackID,
		Filepath:  path,
		FileSize:  &size,
		FileMtime: &mtime,
		Container: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	})
}

type reindexSummary struct {
	Indexed int `json:"indexed"`
	Missing int `json:"missing"`
}

// ReindexFromTracks derives the expected filename for every track and
// attaches rows for the files that actually exist on disk.
func (h *Handler) ReindexFromTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.db.ListTracks(store.TrackFilter{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var summary reindexSummary
	for _, track := range tracks {
		base := filesystem.Sanitize(track.Artists + " - " + track.Title)
		found := false
		for ext := range audioExtensions {
			path := filepath.Join(h.cfg.LibraryDir, base+ext)
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if err := h.upsertFileRow(track.ID, path, info); err != nil {
				h.fail(w, r, err)
				return
			}
			found = true
			break
		}
		if found {
			summary.Indexed++
		} else {
			summary.Missing++
		}
	}
	h.respond(w, http.StatusOK, summary)
}

type resyncSummary struct {
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

// ResyncLibrary drops rows whose files no longer exist on disk.
func (h *Handler) ResyncLibrary(w http.ResponseWriter, r *http.Request) {
	files, err := h.db.ListLibraryFiles()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var summary resyncSummary
	for _, file := range files {
		if _, err := os.Stat(file.Filepath); err == nil {
			summary.Kept++
			continue
		}
		if err := h.db.DeleteLibraryFileByPath(file.Filepath); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.fail(w, r, err)
			return
		}
		summary.Removed++
	}
	h.respond(w, http.StatusOK, summary)
}
