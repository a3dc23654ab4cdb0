// Package jobstore persists transcription jobs and their results.
//
// Two implementations exist: [MemoryStore] for single-instance deployments
// without a database, and [PostgresStore] backed by a transcription_jobs
// table with JSONB payload columns. Both are safe for concurrent use.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/novahealth/nova/pkg/transcript"
)

// ErrNotFound is returned when no job with the requested ID exists.
var ErrNotFound = errors.New("jobstore: job not found")

// Status is the lifecycle state of a transcription job.
type Status string

const (
	// StatusPending means the upload is accepted but processing has not begun.
	StatusPending Status = "pending"

	// StatusProcessing means the orchestration pipeline is running.
	StatusProcessing Status = "processing"

	// StatusCompleted means the merged transcript is available.
	StatusCompleted Status = "completed"

	// StatusFailed means the pipeline errored; Job.Error holds the cause.
	StatusFailed Status = "failed"
)

// Job is one transcription request moving through the pipeline.
type Job struct {
	// ID is assigned at creation and returned to the client for polling.
	ID uuid.UUID `json:"id"`

	// Filename is the client-supplied name of the uploaded audio file.
	Filename string `json:"filename"`

	// AudioPath is the server-local path of the stored upload.
	AudioPath string `json:"-"`

	Status Status `json:"status"`

	// Error is set only when Status is StatusFailed.
	Error string `json:"error,omitempty"`

	// Result is the merged transcript. Nil until completion.
	Result *transcript.Result `json:"result,omitempty"`

	// Decisions are the judge rulings that shaped Result. Empty when the
	// primary pass needed no arbitration.
	Decisions []*transcript.Decision `json:"decisions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides job persistence. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create inserts a new pending job. The job's ID must be set.
	Create(ctx context.Context, job *Job) error

	// Get retrieves a job by ID. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// MarkProcessing transitions a job to StatusProcessing.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// Complete stores the merged result and decisions and transitions the
	// job to StatusCompleted.
	Complete(ctx context.Context, id uuid.UUID, result *transcript.Result, decisions []*transcript.Decision) error

	// Fail records the error message and transitions the job to StatusFailed.
	Fail(ctx context.Context, id uuid.UUID, cause string) error

	// List returns the most recently created jobs, newest first, up to limit.
	// A limit <= 0 returns all jobs.
	List(ctx context.Context, limit int) ([]*Job, error)
}
