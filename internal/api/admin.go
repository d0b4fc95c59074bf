package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/2refocus/dogs-ai-sub000/internal/policy"
	"github.com/2refocus/dogs-ai-sub000/internal/queue"
)

// knownSettingMode limits model_settings rows to keys the resolver reads:
// the three pipeline modes plus the upscale stage.
func knownSettingMode(mode string) bool {
	switch policy.Mode(mode) {
	case policy.ModeSimple, policy.ModeHybrid, policy.ModeMultimodel:
		return true
	}
	return mode == "upscale"
}

func (s *Server) adminListModels(w http.ResponseWriter, r *http.Request) {
	settings, err := s.DB.ListModelSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load model settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "settings": settings})
}

func (s *Server) adminPutModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PipelineMode string `json:"pipeline_mode"`
		Model        string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PipelineMode == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "pipeline_mode and model required")
		return
	}
	if !knownSettingMode(req.PipelineMode) {
		writeError(w, http.StatusBadRequest, "unknown pipeline_mode: "+req.PipelineMode)
		return
	}
	if err := s.DB.UpsertModelSetting(r.Context(), req.PipelineMode, req.Model); err != nil {
		writeError(w, http.StatusInternalServerError, "could not save model setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) adminDeleteModel(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	if err := s.DB.DeleteModelSetting(r.Context(), mode); err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete model setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// adminCleanup deletes records in bulk and schedules their stored objects for
// removal.
func (s *Server) adminCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id: "+raw)
			return
		}
		ids = append(ids, id)
	}
	deleted, err := s.DB.DeletePortraits(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	var urls []string
	for i := range deleted {
		p := &deleted[i]
		urls = append(urls, p.InputImageURL, p.OutputImageURL, derefString(p.HighResImageURL))
	}
	s.enqueueObjectCleanup(urls)
	if s.Cache != nil {
		_ = s.Cache.DeleteByPrefix(r.Context(), "gallery:")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deleted": len(deleted)})
}

// adminCleanupOrphans schedules removal of uploaded inputs that no record
// references (failed or abandoned generations).
func (s *Server) adminCleanupOrphans(w http.ResponseWriter, r *http.Request) {
	if s.Asynq == nil {
		writeError(w, http.StatusServiceUnavailable, "task queue not configured")
		return
	}
	var req struct {
		OlderThanHours int `json:"older_than_hours"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	task, err := queue.NewCleanupOrphansTask(req.OlderThanHours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build task")
		return
	}
	info, err := s.Asynq.Enqueue(task)
	if err != nil {
		log.Printf("enqueue orphan cleanup: %v", err)
		writeError(w, http.StatusInternalServerError, "could not enqueue task")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"ok": true, "task_id": info.ID})
}

// adminMigrateURLs kicks off a background pass that re-hosts provider CDN
// images into owned storage.
func (s *Server) adminMigrateURLs(w http.ResponseWriter, r *http.Request) {
	if s.Asynq == nil {
		writeError(w, http.StatusServiceUnavailable, "task queue not configured")
		return
	}
	var req struct {
		Limit int `json:"limit"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Limit <= 0 {
		req.Limit = 100
	}
	task, err := queue.NewMirrorTask(req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not build task")
		return
	}
	info, err := s.Asynq.Enqueue(task)
	if err != nil {
		log.Printf("enqueue mirror: %v", err)
		writeError(w, http.StatusInternalServerError, "could not enqueue task")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"ok": true, "task_id": info.ID})
}
