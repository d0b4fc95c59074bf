package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeMirror re-archives records whose output URL still points at the
	// provider CDN (stored-URL migration).
	TypeMirror = "portrait:mirror"
	// TypeDeleteObjects removes stored objects after their records were
	// deleted (admin cleanup, user deletes).
	TypeDeleteObjects = "portrait:delete_objects"
	// TypeCleanupOrphans removes uploaded inputs whose generation never
	// produced a record (failed or abandoned jobs).
	TypeCleanupOrphans = "portrait:cleanup_orphans"
)

var taskTimeout = asynq.Timeout(10 * time.Minute)

type MirrorPayload struct {
	Limit int `json:"limit"`
}

type DeleteObjectsPayload struct {
	Keys []string `json:"keys"`
}

func NewMirrorTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(MirrorPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMirror, payload, asynq.Queue("default"), asynq.MaxRetry(2), taskTimeout,
		asynq.Unique(10*time.Minute)), nil
}

type CleanupOrphansPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

func NewCleanupOrphansTask(olderThanHours int) (*asynq.Task, error) {
	payload, err := json.Marshal(CleanupOrphansPayload{OlderThanHours: olderThanHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCleanupOrphans, payload, asynq.Queue("default"), asynq.MaxRetry(1), taskTimeout,
		asynq.Unique(10*time.Minute)), nil
}

func NewDeleteObjectsTask(keys []string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeleteObjectsPayload{Keys: keys})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeleteObjects, payload, asynq.Queue("default"), asynq.MaxRetry(3), taskTimeout), nil
}
