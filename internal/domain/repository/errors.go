package repository

import "errors"

var (
	// ErrNotFound is returned when a record or object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller lacks access to a resource.
	ErrForbidden = errors.New("forbidden")

	// ErrChunkMissing is returned by Combine when an expected byte offset
	// has no corresponding chunk file on disk.
	ErrChunkMissing = errors.New("chunk missing: reassembly gap detected")

	// ErrUnreadableMedia is returned when the probe cannot decode the
	// reassembled source.
	ErrUnreadableMedia = errors.New("unreadable media")

	// ErrRangeNotSatisfiable is returned when a Range header cannot be
	// honored against the object's content length.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// ErrBusy is returned when the job queue is at its configured depth
	// limit and cannot accept new work.
	ErrBusy = errors.New("queue busy")

	// ErrJobAlreadyFinished is returned by Cancel on a job already in a
	// terminal state.
	ErrJobAlreadyFinished = errors.New("job already finished")

	// ErrDuplicateArtifact is returned when a (owner, name) or
	// (owner, resolution, isTrailer=false) uniqueness invariant is violated.
	ErrDuplicateArtifact = errors.New("artifact already exists")
)

// ExistingJobError is returned by JobRepository.Create when a non-terminal
// job already exists for the (resourceId, type) pair.
type ExistingJobError struct {
	JobID  string
	Status string
}

func (e *ExistingJobError) Error() string {
	return "existing job " + e.JobID + " in status " + e.Status
}

// TranscodeFailureError wraps an encoder failure at a specific ladder rung.
type TranscodeFailureError struct {
	Resolution string
	Stage      string
	Err        error
}

func (e *TranscodeFailureError) Error() string {
	return "transcode failure at " + e.Resolution + " (" + e.Stage + "): " + e.Err.Error()
}

func (e *TranscodeFailureError) Unwrap() error {
	return e.Err
}
