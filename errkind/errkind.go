// Package errkind defines the sentinel error kinds named in spec.md §7.
// Structural errors (ErrDuplicateKeyframe, ErrOutOfOrderPose) are fatal
// programming errors: callers propagate them rather than recovering.
// Recoverable kinds are absorbed by the owning thread and surfaced only via
// state flags and log lines; they are defined here so tests can assert
// against them with errors.Is.
package errkind

import "github.com/pkg/errors"

var (
	// ErrNotInitialized is returned by TrackFrame before Initialize has run.
	// The caller (slamsvc.System) auto-recovers by initializing lazily.
	ErrNotInitialized = errors.New("slam: not initialized")

	// ErrTrackingLost marks tracker divergence or sustained bad tracking.
	// Not surfaced as a failure; Tracking transitions to relocalization.
	ErrTrackingLost = errors.New("slam: tracking lost")

	// ErrRelocalizationFailed marks a low-quality relocalization result
	// that was discarded; the reference stays invalidated.
	ErrRelocalizationFailed = errors.New("slam: relocalization failed")

	// ErrDuplicateKeyframe is fatal: insertKeyframe was called twice for
	// the same frame id.
	ErrDuplicateKeyframe = errors.New("slam: duplicate keyframe")

	// ErrOutOfOrderPose is fatal: the registry received a pose whose frame
	// id did not exceed the id of the last appended pose.
	ErrOutOfOrderPose = errors.New("slam: out-of-order pose")

	// ErrSolverDiverged marks a pose-graph solve that produced non-finite
	// values; the merge is skipped and a warning logged.
	ErrSolverDiverged = errors.New("slam: solver diverged")

	// ErrShutdownInProgress marks a submission that arrived after Stop;
	// it is silently dropped by the caller.
	ErrShutdownInProgress = errors.New("slam: shutdown in progress")

	// ErrAlreadyInitialized is returned by Initialize when the map already
	// has a seed keyframe; callers that want to start over use FullReset.
	ErrAlreadyInitialized = errors.New("slam: already initialized")
)
