package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
)

// PipelineTask is the message published for a single processing job run.
type PipelineTask struct {
	JobID      uuid.UUID     `json:"job_id"`
	ClientID   string        `json:"client_id"`
	Type       model.JobType `json:"type"`
	ResourceID string        `json:"resource_id"`
	Owner      model.Owner   `json:"owner"`
	FileName   string        `json:"file_name"`
	RetryCount int           `json:"retry_count"`
}

// MessageQueue defines the interface for queue operations. Implementations
// are provided by the infrastructure layer (RabbitMQ).
type MessageQueue interface {
	// Publish sends a pipeline task to the queue. Used by the API server
	// on /complete-upload and /trailer-upload.
	Publish(ctx context.Context, task PipelineTask) error

	// Consume starts consuming pipeline tasks. The handler is invoked for
	// each received task; a returned error triggers retry-by-republish
	// with RetryCount incremented. Used by the worker service.
	Consume(ctx context.Context, handler func(task PipelineTask) error) error

	// Depth reports the current queue depth, used to enforce the
	// configured backpressure limit.
	Depth(ctx context.Context) (int, error)

	Close() error
}
