package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of a ProcessingJob.
type JobStatus string

const (
	JobWaiting   JobStatus = "waiting"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobWaiting:   {JobActive, JobCancelled},
	JobActive:    {JobCompleted, JobFailed, JobCancelled},
	JobCompleted: {},
	JobFailed:    {},
	JobCancelled: {},
}

func (s JobStatus) IsValid() bool {
	_, ok := jobTransitions[s]
	return ok
}

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobType distinguishes which pipeline a job drives: a full ladder for a
// film or episode, or a single-rung trailer upload.
type JobType string

const (
	JobTypeFilm    JobType = "film"
	JobTypeEpisode JobType = "episode"
	JobTypeTrailer JobType = "trailer"
)

var (
	ErrInvalidJobTransition = errors.New("invalid job status transition")
	ErrJobNotCancellable    = errors.New("job cannot be cancelled in its current state")
	ErrJobNotRetriable      = errors.New("only failed jobs can be retried")
)

// ProcessingJob is the per-upload pipeline run record.
type ProcessingJob struct {
	ID           uuid.UUID
	QueueJobID   string
	Status       JobStatus
	Type         JobType
	Owner        Owner
	FileName     string
	Progress     int // 0..100
	CanCancel    bool
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CancelledAt  *time.Time
	FailedReason string
	RetryCount   int
}

// NewProcessingJob creates a job in the waiting state.
func NewProcessingJob(owner Owner, jobType JobType, fileName, queueJobID string) *ProcessingJob {
	return &ProcessingJob{
		ID:         uuid.New(),
		QueueJobID: queueJobID,
		Status:     JobWaiting,
		Type:       jobType,
		Owner:      owner,
		FileName:   fileName,
		CanCancel:  true,
		CreatedAt:  time.Now(),
	}
}

// TransitionTo attempts to move the job to the next status, enforcing the
// state machine above.
func (j *ProcessingJob) TransitionTo(next JobStatus) error {
	if !next.IsValid() || !j.Status.CanTransitionTo(next) {
		return ErrInvalidJobTransition
	}

	now := time.Now()
	switch next {
	case JobActive:
		j.StartedAt = &now
	case JobCompleted, JobFailed:
		j.FinishedAt = &now
		j.CanCancel = false
	case JobCancelled:
		j.CancelledAt = &now
		j.FinishedAt = &now
		j.CanCancel = false
	}
	j.Status = next
	return nil
}

// NonTerminal reports whether the job still counts toward the
// (resourceId, type) uniqueness invariant.
func (j *ProcessingJob) NonTerminal() bool {
	return j.Status == JobWaiting || j.Status == JobActive
}
