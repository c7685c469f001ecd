package server

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/000Volk000/TubeTap"
)

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// kindForFile picks the media kind whose finished-file extensions include name's extension.
func kindForFile(name string) (tubetap.MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, kind := range []tubetap.MediaKind{tubetap.MediaAudio, tubetap.MediaVideo} {
		for _, e := range kind.Extensions() {
			if ext == e {
				return kind, true
			}
		}
	}
	return "", false
}

// handleFile sends a finished download from its kind's directory, then deletes it.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	kind, ok := kindForFile(name)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "Unsupported file type")
		return
	}

	cfg := s.downloader.Config()
	dir, err := filepath.Abs(cfg.KindDir(kind))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Error reading file")
		return
	}
	path := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, path); err != nil || rel != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		s.log.Warnw("rejected file request outside download directory", "name", name)
		s.writeError(w, http.StatusForbidden, "Unauthorized access")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "File not found")
		} else {
			s.log.Errorw("failed to open file", "path", path, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Error reading file")
		}
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentTypes[strings.ToLower(filepath.Ext(name))])
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	http.ServeContent(sw, r, name, info.ModTime(), f)

	// Partial and conditional responses leave the file for the full download that follows
	if r.Method == http.MethodGet && sw.status == http.StatusOK {
		if err := os.Remove(path); err != nil {
			s.log.Warnw("failed to delete served file", "path", path, "error", err)
		} else {
			s.log.Infow("deleted served file", "path", path)
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
