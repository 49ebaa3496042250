package engine

import "errors"

// Sentinel errors exposed to transports. Wrapped errors carry detail; callers
// classify with errors.Is.
var (
	// ErrAuthentication covers bad signatures, wrong signers and stale
	// claim timestamps.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidState means the entity exists but the operation is not
	// legal from its current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrVotingClosed means the vote arrived outside the milestone's
	// voting window.
	ErrVotingClosed = errors.New("voting window is closed")

	// ErrUnderfunded means the escrow balance cannot cover the transfer.
	ErrUnderfunded = errors.New("escrow underfunded")

	// ErrAlreadyExists guards single-shot creations, e.g. a second failure
	// distribution for the same milestone.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyClaimed means the entitlement was paid out before.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrSubmissionFailed means the external transfer definitively failed.
	// State was not advanced; the operation may be retried.
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrInconsistent means an external transfer may have landed without
	// the engine recording it. Automatic retries stop until an operator
	// resolves the submission.
	ErrInconsistent = errors.New("inconsistent payout state, manual resolution required")

	// ErrNothingToClaim means the wallet holds no unclaimed entitlements.
	ErrNothingToClaim = errors.New("nothing to claim")
)
