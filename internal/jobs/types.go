package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeBackupFile represents a spreadsheet backup job.
	JobTypeBackupFile JobType = "backup_file"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// BackupFileJob represents a job to archive an imported spreadsheet to GCS.
// The raw file bytes travel with the job so the upload can outlive the
// originating HTTP request.
type BackupFileJob struct {
	JobID string `json:"job_id"`

	// Year is the expense partition the file was imported into.
	Year string `json:"year"`

	// Filename is the original upload name, used to build the object name.
	Filename string `json:"filename"`

	// Data is the raw spreadsheet content. Excluded from JSON responses.
	Data []byte `json:"-"`

	// BackupURI is the gs:// URI of the archived object once the job completes.
	BackupURI string `json:"backup_uri,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *BackupFileJob) GetID() string        { return j.JobID }
func (j *BackupFileJob) GetType() JobType     { return JobTypeBackupFile }
func (j *BackupFileJob) GetStatus() JobStatus { return j.Status }

// Publisher defines the interface for publishing jobs to a queue.
// The abstraction allows swapping the in-memory queue for Cloud Tasks or
// Pub/Sub without touching callers.
type Publisher interface {
	// PublishBackupFile publishes a spreadsheet backup job.
	PublishBackupFile(ctx context.Context, job *BackupFileJob) error

	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	SaveJob(ctx context.Context, job *BackupFileJob) error
	GetJob(ctx context.Context, jobID string) (*BackupFileJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*BackupFileJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Year filters jobs by expense partition.
	Year string

	// Status filters jobs by status.
	Status JobStatus

	Limit  int
	Offset int
}
