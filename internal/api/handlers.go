package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/2refocus/dogs-ai-sub000/internal/generate"
	"github.com/2refocus/dogs-ai-sub000/internal/middleware"
	"github.com/2refocus/dogs-ai-sub000/internal/policy"
	"github.com/2refocus/dogs-ai-sub000/internal/queue"
	"github.com/2refocus/dogs-ai-sub000/internal/quota"
	"github.com/2refocus/dogs-ai-sub000/internal/replicate"
)

const maxUploadSize = 15 << 20 // 15 MB input photo

type generateResponse struct {
	OK               bool   `json:"ok"`
	OutputURL        string `json:"output_url"`
	HighResURL       string `json:"high_res_url,omitempty"`
	Model            string `json:"model"`
	PipelineMode     string `json:"pipeline_mode"`
	UserTier         string `json:"user_tier"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	RecordID         string `json:"record_id,omitempty"`
	UpgradeMessage   string `json:"upgrade_message,omitempty"`
}

func (s *Server) generatePortrait(w http.ResponseWriter, r *http.Request) {
	if s.Inference == nil || s.Objects == nil {
		writeError(w, http.StatusServiceUnavailable, "generation not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form too large or malformed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()
	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "image too large")
		return
	}
	image, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil || len(image) == 0 {
		writeError(w, http.StatusBadRequest, "could not read image")
		return
	}

	ctx := r.Context()
	var userPtr *uuid.UUID
	userIDStr := ""
	premium := false
	if userID, ok := middleware.UserID(ctx); ok {
		userPtr = &userID
		userIDStr = userID.String()
		if u, _ := s.DB.UserByID(ctx, userID); u != nil {
			premium = u.IsPremium
		}
	}
	tier := policy.TierFor(userIDStr, premium)

	// force_mode is an administrative override; ignore it for everyone else.
	force := policy.Mode("")
	if fm := r.FormValue("force_mode"); fm != "" && userPtr != nil {
		if admin, _ := s.DB.IsAdmin(ctx, *userPtr); admin {
			force = policy.Mode(fm)
		}
	}
	sel := policy.SelectForTier(tier, policy.Mode(r.FormValue("pipeline_mode")), r.FormValue("generation_mode"), force)

	quotaKey := userIDStr
	if quotaKey == "" {
		quotaKey = middleware.ClientIP(r)
	}
	if err := s.Quota.Take(ctx, tier, quotaKey); err != nil {
		if errors.Is(err, quota.ErrExceeded) {
			writeError(w, http.StatusTooManyRequests, "daily generation limit reached, sign in or upgrade for more")
			return
		}
	}

	req := &generate.Request{
		Image:           image,
		ImageExt:        strings.ToLower(filepath.Ext(header.Filename)),
		ContentType:     header.Header.Get("Content-Type"),
		Species:         r.FormValue("species"),
		StyleLabel:      r.FormValue("preset_label"),
		CropRatio:       r.FormValue("crop_ratio"),
		CustomPrompt:    r.FormValue("custom_prompt"),
		Mode:            sel.SelectedMode,
		Tier:            tier,
		UserID:          userPtr,
		DisplayName:     r.FormValue("display_name"),
		WebsiteURL:      r.FormValue("website_url"),
		ProfileImageURL: r.FormValue("profile_image_url"),
		IsPublic:        r.FormValue("is_public") != "false",
	}

	svc := &generate.Service{
		Inference: s.Inference,
		Objects:   s.Objects,
		Records:   s.DB,
		Events:    s.Events,
		Models:    s.resolveModels(ctx, sel.SelectedMode),
		Opts:      s.GenOpts,
	}
	res, err := svc.Generate(ctx, req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, generate.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		log.Printf("generate: %v", err)
		writeError(w, status, generate.UserMessage(err))
		return
	}
	if req.IsPublic && s.Cache != nil {
		_ = s.Cache.DeleteByPrefix(ctx, "gallery:")
	}
	out := generateResponse{
		OK:               true,
		OutputURL:        res.OutputURL,
		HighResURL:       res.HighResURL,
		Model:            res.ModelUsed,
		PipelineMode:     string(sel.SelectedMode),
		UserTier:         string(tier),
		GenerationTimeMs: res.GenerationTimeMs,
		UpgradeMessage:   sel.UpgradeMessage,
	}
	if res.RecordID != uuid.Nil {
		out.RecordID = res.RecordID.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// resolveModels applies admin model_settings overrides on top of the env
// defaults for the mode this request runs.
func (s *Server) resolveModels(ctx context.Context, mode policy.Mode) generate.Models {
	m := generate.Models{Simple: s.Cfg.ModelSimple, HD: s.Cfg.ModelHD, Upscale: s.Cfg.ModelUpscale}
	overrides, err := s.DB.ModelOverrides(ctx)
	if err != nil {
		log.Printf("model overrides: %v", err)
		return m
	}
	return applyOverrides(m, overrides, mode)
}

// applyOverrides maps a per-mode override onto the slot that mode actually
// reads: simple and hybrid run their base pass on Simple, multimodel on HD.
func applyOverrides(m generate.Models, overrides map[string]string, mode policy.Mode) generate.Models {
	switch mode {
	case policy.ModeHybrid:
		if v := overrides[string(policy.ModeHybrid)]; v != "" {
			m.Simple = v
		}
	case policy.ModeMultimodel:
		if v := overrides[string(policy.ModeMultimodel)]; v != "" {
			m.HD = v
		}
	default:
		if v := overrides[string(policy.ModeSimple)]; v != "" {
			m.Simple = v
		}
	}
	if v := overrides["upscale"]; v != "" {
		m.Upscale = v
	}
	return m
}

func (s *Server) getPrediction(w http.ResponseWriter, r *http.Request) {
	if s.Inference == nil {
		writeError(w, http.StatusServiceUnavailable, "not configured")
		return
	}
	id := chi.URLParam(r, "id")
	job, err := s.Inference.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "prediction lookup failed")
		return
	}
	resp := map[string]interface{}{"ok": true, "status": job.Status}
	if url, ok := replicate.FirstOutputURL(job.Output); ok {
		resp["output"] = url
		resp["urls"] = []string{url}
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) predictionEvents(w http.ResponseWriter, r *http.Request) {
	if s.Stream == nil {
		writeError(w, http.StatusServiceUnavailable, "events not configured")
		return
	}
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()
	_ = s.Stream.Subscribe(r.Context(), id, func(status string, done bool) {
		b, _ := json.Marshal(map[string]interface{}{"status": status, "done": done})
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	})
}

func (s *Server) listGallery(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	ctx := r.Context()
	cacheKey := fmt.Sprintf("gallery:%d:%d", limit, offset)
	if b, _ := s.Cache.Get(ctx, cacheKey); len(b) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
		return
	}
	list, err := s.DB.ListPublicPortraits(ctx, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "gallery unavailable")
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"ok": true, "items": list})
	_ = s.Cache.Set(ctx, cacheKey, payload)
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := s.DB.ListPortraitsByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "items": list})
}

func (s *Server) deletePortrait(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID, _ := middleware.UserID(r.Context())
	ctx := r.Context()
	p, err := s.DB.DeletePortraitOwned(ctx, id, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.enqueueObjectCleanup([]string{p.InputImageURL, p.OutputImageURL, derefString(p.HighResImageURL)})
	if p.IsPublic && s.Cache != nil {
		_ = s.Cache.DeleteByPrefix(ctx, "gallery:")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listPipelines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userIDStr := ""
	premium := false
	if userID, ok := middleware.UserID(ctx); ok {
		userIDStr = userID.String()
		if u, _ := s.DB.UserByID(ctx, userID); u != nil {
			premium = u.IsPremium
		}
	}
	tier := policy.TierFor(userIDStr, premium)
	quotaKey := userIDStr
	if quotaKey == "" {
		quotaKey = middleware.ClientIP(r)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"user_tier":       tier,
		"strategy":        policy.StrategyFor(tier),
		"remaining_today": s.Quota.Remaining(ctx, tier, quotaKey),
	})
}

// enqueueObjectCleanup schedules deletion of owned storage objects; URLs not
// minted by us are skipped.
func (s *Server) enqueueObjectCleanup(urls []string) {
	if s.Asynq == nil || s.Objects == nil {
		return
	}
	var keys []string
	for _, u := range urls {
		if key := s.Objects.KeyFromURL(u); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	task, err := queue.NewDeleteObjectsTask(keys)
	if err != nil {
		return
	}
	if _, err := s.Asynq.Enqueue(task); err != nil {
		log.Printf("enqueue object cleanup: %v", err)
	}
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
