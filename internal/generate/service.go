package generate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2refocus/dogs-ai-sub000/internal/policy"
	"github.com/2refocus/dogs-ai-sub000/internal/prompt"
	"github.com/2refocus/dogs-ai-sub000/internal/replicate"
	"github.com/2refocus/dogs-ai-sub000/internal/storage"
	"github.com/2refocus/dogs-ai-sub000/internal/store"
)

// Inference is the slice of the provider client the service needs.
type Inference interface {
	Create(ctx context.Context, model string, input map[string]interface{}) (*replicate.Job, error)
	Get(ctx context.Context, id string) (*replicate.Job, error)
	Cancel(ctx context.Context, id string) error
}

// ObjectStore is the slice of the storage layer the service needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	URL(key string) string
}

// RecordStore persists finished generations.
type RecordStore interface {
	InsertPortrait(ctx context.Context, p *store.Portrait) (uuid.UUID, error)
}

// Events receives status transitions during the poll loop, keyed by the
// provider job ID. May be nil.
type Events interface {
	Publish(ctx context.Context, jobID, status string, done bool) error
}

// Models holds the resolved model identifiers for one request. Admin
// overrides from model_settings are applied before the service runs.
type Models struct {
	Simple  string
	HD      string
	Upscale string
}

// Options bounds the poll loops. Zero values take the production defaults.
type Options struct {
	PollInterval    time.Duration // between status fetches (default 1.2s)
	SimpleTimeout   time.Duration // wall-clock budget for the simple pipeline (default 55s)
	PipelineTimeout time.Duration // budget for hybrid/multimodel base stage (default 300s)
	UpscaleTimeout  time.Duration // budget for the super-resolution stage (default 90s)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 1200 * time.Millisecond
	}
	if o.SimpleTimeout <= 0 {
		o.SimpleTimeout = 55 * time.Second
	}
	if o.PipelineTimeout <= 0 {
		o.PipelineTimeout = 300 * time.Second
	}
	if o.UpscaleTimeout <= 0 {
		o.UpscaleTimeout = 90 * time.Second
	}
	return o
}

// Request is one generation, consumed exactly once.
type Request struct {
	Image       []byte
	ImageExt    string // ".jpg", ".png"; defaults to ".jpg"
	ContentType string

	Species      string
	StyleLabel   string
	CropRatio    string // underscore token, e.g. "4_5"
	CustomPrompt string

	Mode policy.Mode
	Tier policy.Tier

	UserID          *uuid.UUID
	DisplayName     string
	WebsiteURL      string
	ProfileImageURL string
	IsPublic        bool
}

type Result struct {
	OutputURL        string
	HighResURL       string
	ModelUsed        string
	PromptText       string
	InputURL         string
	RecordID         uuid.UUID // uuid.Nil when the insert failed (non-fatal)
	GenerationTimeMs int64
}

type Service struct {
	Inference Inference
	Objects   ObjectStore
	Records   RecordStore
	Events    Events
	Models    Models
	Opts      Options

	// HTTPClient is used for archival downloads; nil gets a 2 min default.
	HTTPClient *http.Client
}

// Generate runs the full pipeline: upload, create, poll, archive, optional
// upscale, persist.
// Upload and create failures are fatal with no retry; archival and persist
// failures are absorbed. ctx cancellation stops the poll loop early.
func (s *Service) Generate(ctx context.Context, req *Request) (*Result, error) {
	opts := s.Opts.withDefaults()
	started := time.Now()

	inputURL, err := s.uploadInput(ctx, req)
	if err != nil {
		return nil, err
	}

	promptText := prompt.Compose(req.Species, req.StyleLabel, req.CropRatio, req.CustomPrompt)

	model := s.baseModel(req.Mode)
	input := map[string]interface{}{
		"prompt":        promptText,
		"image_input":   []string{inputURL},
		"aspect_ratio":  prompt.AspectRatio(req.CropRatio),
		"output_format": "jpg",
	}
	job, err := s.Inference.Create(ctx, model, input)
	if err != nil {
		return nil, fail(ErrCreate, err.Error(), err)
	}
	s.publish(ctx, job.ID, "created", false)

	budget := opts.PipelineTimeout
	if req.Mode == policy.ModeSimple {
		budget = opts.SimpleTimeout
	}
	providerURL, err := s.poll(ctx, job.ID, budget, opts.PollInterval)
	if err != nil {
		return nil, err
	}

	// Archive the (possibly ephemeral) provider URL into owned storage.
	// Best-effort: generation succeeded, archival is secondary.
	recordID := uuid.New()
	outputURL := s.archive(ctx, providerURL, fmt.Sprintf("portraits/%s", recordID))
	if outputURL == "" {
		outputURL = providerURL
	}

	highRes := ""
	if req.Mode == policy.ModeHybrid || req.Mode == policy.ModeMultimodel {
		highRes = s.upscale(ctx, outputURL, req.Mode, recordID, opts)
	}

	res := &Result{
		OutputURL:        outputURL,
		HighResURL:       highRes,
		ModelUsed:        model,
		PromptText:       promptText,
		InputURL:         inputURL,
		GenerationTimeMs: time.Since(started).Milliseconds(),
	}

	record := &store.Portrait{
		ID:               recordID,
		UserID:           req.UserID,
		InputImageURL:    inputURL,
		OutputImageURL:   outputURL,
		PromptText:       promptText,
		StyleLabel:       req.StyleLabel,
		PipelineMode:     string(req.Mode),
		ModelUsed:        model,
		UserTier:         string(req.Tier),
		GenerationTimeMs: res.GenerationTimeMs,
		IsPublic:         req.IsPublic,
	}
	if highRes != "" {
		record.HighResImageURL = &highRes
	}
	if req.DisplayName != "" {
		record.DisplayName = &req.DisplayName
	}
	if req.WebsiteURL != "" {
		record.WebsiteURL = &req.WebsiteURL
	}
	if req.ProfileImageURL != "" {
		record.ProfileImageURL = &req.ProfileImageURL
	}
	record.ProviderJobID = &job.ID
	if s.Records != nil {
		if id, err := s.Records.InsertPortrait(ctx, record); err != nil {
			// Persist failures never lose a successful generation.
			log.Printf("generate: persist record: %v", err)
		} else {
			res.RecordID = id
		}
	}
	return res, nil
}

func (s *Service) uploadInput(ctx context.Context, req *Request) (string, error) {
	ext := req.ImageExt
	if ext == "" {
		ext = ".jpg"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := fmt.Sprintf("uploads/%s-%s%s", time.Now().UTC().Format("20060102T150405"), uuid.New().String(), ext)
	if _, err := s.Objects.Put(ctx, key, bytes.NewReader(req.Image), contentType); err != nil {
		return "", fail(ErrUpload, "", err)
	}
	return s.Objects.URL(key), nil
}

func (s *Service) baseModel(mode policy.Mode) string {
	if mode == policy.ModeMultimodel {
		return s.Models.HD
	}
	return s.Models.Simple
}

// poll fetches job status at a fixed interval until a terminal state or the
// wall-clock budget elapses. The budget, not an iteration count, bounds the
// loop.
func (s *Service) poll(ctx context.Context, jobID string, budget, interval time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	for {
		job, err := s.Inference.Get(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "", s.timeout(jobID)
			}
			return "", fail(ErrGenerationFailed, "", err)
		}
		s.publish(ctx, jobID, job.Status, replicate.Terminal(job.Status))
		switch {
		case replicate.Succeeded(job.Status):
			if url, ok := replicate.FirstOutputURL(job.Output); ok {
				return url, nil
			}
			return "", fail(ErrGenerationFailed, "job succeeded without output", nil)
		case job.Status == "failed" || job.Status == "canceled":
			return "", fail(ErrGenerationFailed, job.Error, nil)
		}
		select {
		case <-ctx.Done():
			return "", s.timeout(jobID)
		case <-time.After(interval):
		}
	}
}

func (s *Service) timeout(jobID string) error {
	// Detach from the expired context for the cancel call.
	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Inference.Cancel(cctx, jobID)
	s.publish(cctx, jobID, "timed_out", true)
	return fail(ErrTimeout, "", nil)
}

// archive downloads url and re-uploads it under keyBase, returning the owned
// URL or "" on any failure.
func (s *Service) archive(ctx context.Context, url, keyBase string) string {
	body, contentType, err := storage.Download(ctx, s.HTTPClient, url)
	if err != nil {
		log.Printf("generate: archival fallback to provider url: %v", err)
		return ""
	}
	key := keyBase + storage.ExtForContentType(contentType)
	if _, err := s.Objects.Put(ctx, key, bytes.NewReader(body), contentType); err != nil {
		log.Printf("generate: archival upload: %v", err)
		return ""
	}
	return s.Objects.URL(key)
}

// upscale runs the super-resolution stage with its own budget. Failure falls
// back silently to the pre-upscale image.
func (s *Service) upscale(ctx context.Context, imageURL string, mode policy.Mode, recordID uuid.UUID, opts Options) string {
	if s.Models.Upscale == "" {
		return ""
	}
	scale := 2
	if mode == policy.ModeMultimodel {
		scale = 4
	}
	job, err := s.Inference.Create(ctx, s.Models.Upscale, map[string]interface{}{
		"image": imageURL,
		"scale": scale,
	})
	if err != nil {
		log.Printf("generate: upscale create: %v", err)
		return ""
	}
	url, err := s.poll(ctx, job.ID, opts.UpscaleTimeout, opts.PollInterval)
	if err != nil {
		log.Printf("generate: upscale: %v", err)
		return ""
	}
	if owned := s.archive(ctx, url, fmt.Sprintf("portraits/%s-hd", recordID)); owned != "" {
		return owned
	}
	return url
}

func (s *Service) publish(ctx context.Context, jobID, status string, done bool) {
	if s.Events == nil {
		return
	}
	_ = s.Events.Publish(ctx, jobID, status, done)
}
