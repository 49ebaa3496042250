// Package reconcile closes the gap between the payout ledger and the chain.
// A submission left pending after a crash is resolved against the cluster's
// view of its signature: definitively failed transfers become retryable,
// transfers that may have landed unrecorded become inconsistent and freeze
// their entity until an operator rules on them.
package reconcile

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/JermWang/hodler-sub004/internal/chain"
	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/events"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

type Reconciler struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Chain  chain.StatusChecker
	Log    zerolog.Logger
	Now    func() time.Time

	// PendingGrace is how long a pending submission may sit unresolved
	// before the sweep rules on it. Inside the grace period the transfer
	// may simply still be confirming.
	PendingGrace time.Duration
}

func (r Reconciler) now() int64 {
	if r.Now == nil {
		return time.Now().UTC().Unix()
	}
	return r.Now().UTC().Unix()
}

func (r Reconciler) grace() int64 {
	if r.PendingGrace <= 0 {
		return int64((10 * time.Minute).Seconds())
	}
	return int64(r.PendingGrace.Seconds())
}

// Sweep examines every pending submission once. It returns the number of
// submissions whose status it changed.
func (r Reconciler) Sweep(ctx context.Context) (int, error) {
	pending, err := r.Repo.ListSubmissionsByStatus(ctx, domain.SubmissionPending)
	if err != nil {
		return 0, errors.Wrap(err, "list pending submissions")
	}
	changed := 0
	now := r.now()
	for _, s := range pending {
		moved, err := r.resolvePending(ctx, s, now)
		if err != nil {
			r.Log.Error().Err(err).Int64("submission", s.ID).Msg("reconcile sweep error")
			continue
		}
		if moved {
			changed++
		}
	}
	return changed, nil
}

func (r Reconciler) resolvePending(ctx context.Context, s domain.PayoutSubmission, now int64) (bool, error) {
	aged := now-s.CreatedAtUnix >= r.grace()

	// No signature recorded: the process died somewhere around the send.
	// Whether lamports moved is unknowable from here, so after the grace
	// period the submission freezes as inconsistent.
	if s.TxRef == "" {
		if !aged {
			return false, nil
		}
		return r.settle(ctx, s, domain.SubmissionInconsistent, "", "no signature recorded for submitted transfer")
	}

	status, err := r.Chain.Status(ctx, s.TxRef)
	if err != nil {
		return false, errors.Wrap(err, "check signature status")
	}
	switch status {
	case chain.StatusFailed:
		return r.settle(ctx, s, domain.SubmissionFailed, s.TxRef, "transaction failed on chain")
	case chain.StatusConfirmed:
		// The transfer landed but the submission never settled, so the
		// entity state was not advanced either. Retrying now would pay
		// twice; an operator has to confirm and advance by hand.
		return r.settle(ctx, s, domain.SubmissionInconsistent, s.TxRef, "transfer confirmed on chain but not recorded")
	case chain.StatusUnknown:
		if !aged {
			return false, nil
		}
		// Old enough that its blockhash has expired: the cluster will
		// never include it.
		return r.settle(ctx, s, domain.SubmissionFailed, s.TxRef, "transaction expired unseen")
	default:
		return false, nil
	}
}

func (r Reconciler) settle(ctx context.Context, s domain.PayoutSubmission, status domain.SubmissionStatus, txRef, reason string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	moved, err := r.Repo.UpdateSubmissionTx(ctx, tx, s.ID, status, txRef, reason, r.now())
	if err != nil {
		return false, err
	}
	if !moved {
		return false, tx.Commit()
	}
	if err := r.Events.Append(ctx, tx, "submission."+string(status), "", s.EntityKind, s.EntityID, "", events.EventPayload{
		"submission_id": s.ID, "reason": reason,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	r.Log.Warn().Int64("submission", s.ID).Str("entity_kind", s.EntityKind).Str("entity_id", s.EntityID).
		Str("status", string(status)).Str("reason", reason).Msg("submission reconciled")
	return true, nil
}

// ResolveInconsistent is the operator's ruling on a frozen submission.
// Confirmed rulings advance the entity state the interrupted operation never
// got to write; failed rulings unfreeze the entity for a retry.
func (r Reconciler) ResolveInconsistent(ctx context.Context, submissionID int64, confirmed bool, txRef string) error {
	s, err := r.Repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if s.Status != domain.SubmissionInconsistent {
		return errors.Errorf("submission %d is %s, not inconsistent", submissionID, s.Status)
	}
	if txRef == "" {
		txRef = s.TxRef
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.now()
	status := domain.SubmissionFailed
	reason := "operator ruled transfer did not land"
	if confirmed {
		status = domain.SubmissionConfirmed
		reason = "operator confirmed transfer"
	}
	moved, err := r.Repo.ResolveSubmissionTx(ctx, tx, submissionID, status, txRef, reason, now)
	if err != nil {
		return err
	}
	if !moved {
		return errors.Errorf("submission %d was resolved concurrently", submissionID)
	}
	if confirmed {
		if err := r.advanceEntity(ctx, tx, s, txRef, now); err != nil {
			return err
		}
	}
	if err := r.Events.Append(ctx, tx, "submission.resolved", "", s.EntityKind, s.EntityID, "", events.EventPayload{
		"submission_id": submissionID, "confirmed": confirmed, "tx_ref": txRef,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// advanceEntity replays the state write the interrupted operation would have
// made after its transfer confirmed.
func (r Reconciler) advanceEntity(ctx context.Context, tx *sql.Tx, s domain.PayoutSubmission, txRef string, now int64) error {
	switch s.EntityKind {
	case domain.EntityRelease:
		m, err := r.Repo.GetMilestoneTx(ctx, tx, s.EntityID)
		if err != nil {
			return err
		}
		released, err := r.Repo.ReleaseMilestoneTx(ctx, tx, s.EntityID, now, txRef)
		if err != nil {
			return err
		}
		if released {
			return r.Repo.AddUnlockedTotalTx(ctx, tx, m.CommitmentID, s.Amount)
		}
		return nil
	case domain.EntityBuyback:
		return r.Repo.SetBuybackTxRefTx(ctx, tx, s.EntityID, txRef)
	case domain.EntityFailureClaim:
		distID, voter, ok := strings.Cut(s.EntityID, "|")
		if !ok {
			return errors.Errorf("malformed failure claim entity id %q", s.EntityID)
		}
		_, err := r.Repo.MarkClaimPaidTx(ctx, tx, distID, voter, txRef, now)
		return err
	case domain.EntityVoteRewards:
		entries, err := r.Repo.ListUnclaimedRewardsTx(ctx, tx, s.EntityID)
		if err != nil {
			return err
		}
		for _, en := range entries {
			if _, err := r.Repo.MarkRewardClaimedTx(ctx, tx, en.ID, txRef); err != nil {
				return err
			}
		}
		return nil
	case domain.EntityResolve:
		resolved, err := r.Repo.ResolveCommitmentTx(ctx, tx, s.EntityID)
		if err != nil {
			return err
		}
		if resolved {
			return r.Repo.AddUnlockedTotalTx(ctx, tx, s.EntityID, s.Amount)
		}
		return nil
	default:
		return errors.Errorf("unknown entity kind %q", s.EntityKind)
	}
}
