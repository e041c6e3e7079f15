package conversions

import (
	"context"
	"time"
)

// DefaultStatusTTL bounds how long a job snapshot stays readable.
const DefaultStatusTTL = 24 * time.Hour

// StatusStore keeps the latest snapshot of every job.
type StatusStore interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
}
