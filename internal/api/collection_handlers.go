package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
	"github.com/JakeFAU/creative-collector/internal/orchestrator"
)

type collectRequest struct {
	VideoURL string `json:"video_url"`
}

type cancelResponse struct {
	TaskID string             `json:"task_id"`
	Status crawler.TaskStatus `json:"status"`
}

// collect handles POST /collect {"video_url": "..."}. Anything that is not a
// known platform URL is collected as self-authored text.
func (s *Server) collect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	handle, err := s.svc.Submit(r.Context(), req.VideoURL)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptySubmission) {
			writeError(w, http.StatusBadRequest, "video_url required")
			return
		}
		s.logger.Error("submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}
	writeJSON(w, http.StatusAccepted, handle)
}

// status handles GET /status/{task_id}. Unknown ids report not_found with a
// 200 so pollers need not special-case them.
func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	snap, err := s.svc.Poll(r.Context(), taskID)
	if err != nil {
		s.logger.Error("poll failed", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	err := s.svc.Cancel(r.Context(), taskID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, cancelResponse{TaskID: taskID, Status: crawler.TaskStatusCanceled})
	case errors.Is(err, crawler.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, crawler.ErrTaskTerminal):
		writeError(w, http.StatusConflict, "task already finished")
	default:
		s.logger.Error("cancel failed", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to cancel task")
	}
}

// list handles GET /list?page=&page_size=&status=&platform=.
func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, crawler.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("get record failed", zap.Int64("record_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, crawler.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("delete record failed", zap.Int64("record_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func parseRecordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseRecordFilter(r *http.Request) (crawler.RecordFilter, error) {
	q := r.URL.Query()
	filter := crawler.RecordFilter{Page: 1, PageSize: crawler.DefaultPageSize}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errors.New("invalid page")
		}
		filter.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 || size > crawler.MaxPageSize {
			return filter, errors.New("invalid page_size")
		}
		filter.PageSize = size
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		switch crawler.RecordStatus(strings.ToLower(v)) {
		case crawler.RecordStatusSuccess:
			filter.Status = crawler.RecordStatusSuccess
		case crawler.RecordStatusFailed:
			filter.Status = crawler.RecordStatusFailed
		default:
			return filter, errors.New("invalid status")
		}
	}
	if v := strings.TrimSpace(q.Get("platform")); v != "" {
		p, ok := crawler.ParsePlatform(v)
		if !ok {
			return filter, errors.New("invalid platform")
		}
		filter.Platform = p
	}
	return filter, nil
}
