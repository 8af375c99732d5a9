package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// cleanManagedPath normalizes a requested filename and rejects anything that
// would escape the media root.
func cleanManagedPath(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", errors.New("filename required")
	}
	if strings.HasPrefix(name, "/") {
		return "", errors.New("invalid filename")
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", errors.New("invalid filename")
		}
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", errors.New("invalid filename")
	}
	return cleaned, nil
}

// getFile streams a managed media file referenced by ?filename=.
func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media store unavailable")
		return
	}
	rel, err := cleanManagedPath(r.URL.Query().Get("filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rc, err := s.media.OpenObject(r.Context(), rel)
	if err != nil {
		if errors.Is(err, crawler.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("open media file failed", zap.String("path", rel), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer func() {
		if err := rc.Close(); err != nil {
			s.logger.Debug("close media file", zap.String("path", rel), zap.Error(err))
		}
	}()

	ctype := mime.TypeByExtension(path.Ext(rel))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("stream media file interrupted", zap.String("path", rel), zap.Error(err))
	}
}
