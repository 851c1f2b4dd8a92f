package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMacrosGenerate runs the reconciliation pipeline for a stored export.
	TaskMacrosGenerate = "macros:generate"
	// TaskSKUSnapshotWarmup preloads SKU mapping snapshots into the cache.
	TaskSKUSnapshotWarmup = "skumap:warmup"
)

// MacrosGeneratePayload identifies the file record to process.
type MacrosGeneratePayload struct {
	FileID string `json:"file_id"`
}

// NewMacrosGenerateTask constructs an Asynq task.
func NewMacrosGenerateTask(fileID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(MacrosGeneratePayload{FileID: fileID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMacrosGenerate, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// SKUSnapshotWarmupPayload optionally limits the warmup to one brand.
type SKUSnapshotWarmupPayload struct {
	BrandID string `json:"brand_id,omitempty"`
}

// NewSKUSnapshotWarmupTask constructs an Asynq task for the snapshot warmup.
func NewSKUSnapshotWarmupTask(brandID string) (*asynq.Task, error) {
	data, err := json.Marshal(SKUSnapshotWarmupPayload{BrandID: brandID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSKUSnapshotWarmup, data, asynq.Queue(QueueDefault)), nil
}
