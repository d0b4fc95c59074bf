package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/2refocus/dogs-ai-sub000/internal/cache"
	"github.com/2refocus/dogs-ai-sub000/internal/storage"
	"github.com/2refocus/dogs-ai-sub000/internal/store"
)

const mirrorConcurrency = 4

type Handlers struct {
	DB    *store.DB
	Store *storage.Store
	Cache *cache.Redis
	// PublicBase is the owned storage base URL; records outside it are
	// provider-hosted and eligible for mirroring.
	PublicBase string

	// HTTPClient for CDN downloads; nil gets a 2 min default.
	HTTPClient *http.Client
}

// MirrorHandler walks records still pointing at the provider CDN, downloads
// each image and rewrites the record to the owned copy. Individual failures
// are logged and skipped; the task reports how many it migrated.
func (h *Handlers) MirrorHandler(ctx context.Context, t *asynq.Task) error {
	var p MirrorPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if h.Store == nil || h.PublicBase == "" {
		log.Print("mirror: storage not configured, skipping")
		return nil
	}
	portraits, err := h.DB.ListProviderHostedPortraits(ctx, h.PublicBase, p.Limit)
	if err != nil {
		return err
	}
	if len(portraits) == 0 {
		return nil
	}
	client := h.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	var migrated int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorConcurrency)
	results := make([]bool, len(portraits))
	for i := range portraits {
		i := i
		g.Go(func() error {
			p := &portraits[i]
			body, contentType, err := storage.Download(gctx, client, p.OutputImageURL)
			if err != nil {
				log.Printf("mirror %s: download: %v", p.ID, err)
				return nil
			}
			key := fmt.Sprintf("portraits/%s%s", p.ID, storage.ExtForContentType(contentType))
			if _, err := h.Store.Put(gctx, key, bytes.NewReader(body), contentType); err != nil {
				log.Printf("mirror %s: upload: %v", p.ID, err)
				return nil
			}
			if err := h.DB.UpdatePortraitOutputURL(gctx, p.ID, h.Store.URL(key)); err != nil {
				log.Printf("mirror %s: update record: %v", p.ID, err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, ok := range results {
		if ok {
			migrated++
		}
	}
	log.Printf("mirror: migrated %d/%d records", migrated, len(portraits))
	if migrated > 0 && h.Cache != nil {
		_ = h.Cache.DeleteByPrefix(ctx, "gallery:")
	}
	return nil
}

// DeleteObjectsHandler removes stored objects whose records are gone.
func (h *Handlers) DeleteObjectsHandler(ctx context.Context, t *asynq.Task) error {
	var p DeleteObjectsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if h.Store == nil {
		return nil
	}
	for _, key := range p.Keys {
		if key == "" {
			continue
		}
		if err := h.Store.Delete(ctx, key); err != nil {
			log.Printf("delete object %s: %v", key, err)
		}
	}
	return nil
}

// CleanupOrphansHandler removes uploaded inputs that no record references.
// Fresh uploads are kept; a generation may still be in flight.
func (h *Handlers) CleanupOrphansHandler(ctx context.Context, t *asynq.Task) error {
	var p CleanupOrphansPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	if h.Store == nil {
		return nil
	}
	if p.OlderThanHours <= 0 {
		p.OlderThanHours = 24
	}
	cutoff := time.Now().Add(-time.Duration(p.OlderThanHours) * time.Hour)
	objects, err := h.Store.List(ctx, "uploads/")
	if err != nil {
		return err
	}
	var removed int
	for _, obj := range objects {
		if obj.LastModified.IsZero() || obj.LastModified.After(cutoff) {
			continue
		}
		inUse, err := h.DB.InputURLInUse(ctx, h.Store.URL(obj.Key))
		if err != nil {
			log.Printf("cleanup orphans %s: lookup: %v", obj.Key, err)
			continue
		}
		if inUse {
			continue
		}
		if err := h.Store.Delete(ctx, obj.Key); err != nil {
			log.Printf("cleanup orphans %s: delete: %v", obj.Key, err)
			continue
		}
		removed++
	}
	log.Printf("cleanup orphans: removed %d/%d uploads", removed, len(objects))
	return nil
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeMirror, h.MirrorHandler)
	mux.HandleFunc(TypeDeleteObjects, h.DeleteObjectsHandler)
	mux.HandleFunc(TypeCleanupOrphans, h.CleanupOrphansHandler)
}
