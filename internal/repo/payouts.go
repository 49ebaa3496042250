package repo

import (
	"context"
	"database/sql"

	"github.com/JermWang/hodler-sub004/internal/domain"
)

const distributionCols = `id,milestone_id,forfeited,buyback_amount,voter_pot,eligible_weight,COALESCE(buyback_tx_ref,''),created_at_unix`

func scanDistribution(row interface{ Scan(...any) error }) (domain.FailureDistribution, error) {
	var d domain.FailureDistribution
	err := row.Scan(&d.ID, &d.MilestoneID, &d.Forfeited, &d.BuybackAmount, &d.VoterPot,
		&d.EligibleWeight, &d.BuybackTxRef, &d.CreatedAtUnix)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDistributionTx(ctx context.Context, tx *sql.Tx, d domain.FailureDistribution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO failure_distributions(id,milestone_id,forfeited,buyback_amount,voter_pot,eligible_weight,buyback_tx_ref,created_at_unix)
VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.MilestoneID, d.Forfeited, d.BuybackAmount, d.VoterPot, d.EligibleWeight,
		nullable(d.BuybackTxRef), d.CreatedAtUnix)
	return err
}

func (r Repo) GetDistributionByMilestone(ctx context.Context, milestoneID string) (domain.FailureDistribution, error) {
	return scanDistribution(r.DB.QueryRowContext(ctx, `SELECT `+distributionCols+` FROM failure_distributions WHERE milestone_id=?`, milestoneID))
}

func (r Repo) GetDistributionByMilestoneTx(ctx context.Context, tx *sql.Tx, milestoneID string) (domain.FailureDistribution, error) {
	return scanDistribution(tx.QueryRowContext(ctx, `SELECT `+distributionCols+` FROM failure_distributions WHERE milestone_id=?`, milestoneID))
}

func (r Repo) GetDistribution(ctx context.Context, id string) (domain.FailureDistribution, error) {
	return scanDistribution(r.DB.QueryRowContext(ctx, `SELECT `+distributionCols+` FROM failure_distributions WHERE id=?`, id))
}

func (r Repo) SetBuybackTxRefTx(ctx context.Context, tx *sql.Tx, id, txRef string) error {
	res, err := tx.ExecContext(ctx, `UPDATE failure_distributions SET buyback_tx_ref=? WHERE id=?`, txRef, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const claimCols = `distribution_id,voter,amount,claimed,COALESCE(claim_tx_ref,''),created_at_unix,claimed_at_unix`

func scanClaim(row interface{ Scan(...any) error }) (domain.FailureClaim, error) {
	var c domain.FailureClaim
	err := row.Scan(&c.DistributionID, &c.Voter, &c.Amount, &c.Claimed, &c.ClaimTxRef, &c.CreatedAtUnix, &c.ClaimedAtUnix)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertClaimTx(ctx context.Context, tx *sql.Tx, c domain.FailureClaim) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO failure_claims(distribution_id,voter,amount,claimed,claim_tx_ref,created_at_unix,claimed_at_unix)
VALUES (?,?,?,?,?,?,?)`,
		c.DistributionID, c.Voter, c.Amount, c.Claimed, nullable(c.ClaimTxRef), c.CreatedAtUnix, c.ClaimedAtUnix)
	return err
}

func (r Repo) GetClaim(ctx context.Context, distributionID, voter string) (domain.FailureClaim, error) {
	return scanClaim(r.DB.QueryRowContext(ctx, `SELECT `+claimCols+` FROM failure_claims WHERE distribution_id=? AND voter=?`, distributionID, voter))
}

func (r Repo) GetClaimTx(ctx context.Context, tx *sql.Tx, distributionID, voter string) (domain.FailureClaim, error) {
	return scanClaim(tx.QueryRowContext(ctx, `SELECT `+claimCols+` FROM failure_claims WHERE distribution_id=? AND voter=?`, distributionID, voter))
}

func (r Repo) ListClaims(ctx context.Context, distributionID string) ([]domain.FailureClaim, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+claimCols+` FROM failure_claims WHERE distribution_id=? ORDER BY voter ASC`, distributionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FailureClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// MarkClaimPaidTx flips a claim to claimed exactly once. The claimed=0 guard
// makes a duplicate claim a zero-row update rather than a double payout.
func (r Repo) MarkClaimPaidTx(ctx context.Context, tx *sql.Tx, distributionID, voter, txRef string, at int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE failure_claims SET claimed=1, claim_tx_ref=?, claimed_at_unix=? WHERE distribution_id=? AND voter=? AND claimed=0`,
		txRef, at, distributionID, voter)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const rewardCols = `id,commitment_id,distribution_id,wallet,amount,claimed,COALESCE(claim_tx_ref,''),created_at_unix`

func scanReward(row interface{ Scan(...any) error }) (domain.VoteRewardEntry, error) {
	var e domain.VoteRewardEntry
	err := row.Scan(&e.ID, &e.CommitmentID, &e.DistributionID, &e.Wallet, &e.Amount, &e.Claimed, &e.ClaimTxRef, &e.CreatedAtUnix)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) InsertRewardEntryTx(ctx context.Context, tx *sql.Tx, e domain.VoteRewardEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO vote_reward_entries(id,commitment_id,distribution_id,wallet,amount,claimed,claim_tx_ref,created_at_unix)
VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.CommitmentID, e.DistributionID, e.Wallet, e.Amount, e.Claimed, nullable(e.ClaimTxRef), e.CreatedAtUnix)
	return err
}

func (r Repo) ListUnclaimedRewards(ctx context.Context, wallet string) ([]domain.VoteRewardEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+rewardCols+` FROM vote_reward_entries WHERE wallet=? AND claimed=0 ORDER BY created_at_unix ASC, id ASC`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.VoteRewardEntry
	for rows.Next() {
		e, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) ListUnclaimedRewardsTx(ctx context.Context, tx *sql.Tx, wallet string) ([]domain.VoteRewardEntry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+rewardCols+` FROM vote_reward_entries WHERE wallet=? AND claimed=0 ORDER BY created_at_unix ASC, id ASC`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.VoteRewardEntry
	for rows.Next() {
		e, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// MarkRewardClaimedTx flips one accrual entry to claimed, guarded on the
// unclaimed pre-state.
func (r Repo) MarkRewardClaimedTx(ctx context.Context, tx *sql.Tx, id, txRef string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE vote_reward_entries SET claimed=1, claim_tx_ref=? WHERE id=? AND claimed=0`, txRef, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const submissionCols = `id,entity_kind,entity_id,destination,amount,COALESCE(tx_ref,''),status,COALESCE(reason,''),created_at_unix,updated_at_unix`

func scanSubmission(row interface{ Scan(...any) error }) (domain.PayoutSubmission, error) {
	var s domain.PayoutSubmission
	err := row.Scan(&s.ID, &s.EntityKind, &s.EntityID, &s.Destination, &s.Amount, &s.TxRef,
		&s.Status, &s.Reason, &s.CreatedAtUnix, &s.UpdatedAtUnix)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// InsertSubmissionTx records an external transfer attempt before the transfer
// is submitted, so a crash between submit and record is visible afterwards.
func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.PayoutSubmission) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO payout_submissions(entity_kind,entity_id,destination,amount,tx_ref,status,reason,created_at_unix,updated_at_unix)
VALUES (?,?,?,?,?,?,?,?,?)`,
		s.EntityKind, s.EntityID, s.Destination, s.Amount, nullable(s.TxRef), s.Status, nullable(s.Reason), s.CreatedAtUnix, s.UpdatedAtUnix)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateSubmissionTx settles a submission out of pending. The pending guard
// keeps the reconciler and the request path from racing each other.
func (r Repo) UpdateSubmissionTx(ctx context.Context, tx *sql.Tx, id int64, status domain.SubmissionStatus, txRef, reason string, at int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE payout_submissions SET status=?, tx_ref=COALESCE(?,tx_ref), reason=?, updated_at_unix=? WHERE id=? AND status=?`,
		status, nullable(txRef), nullable(reason), at, id, domain.SubmissionPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ResolveSubmissionTx settles an inconsistent submission after an operator
// determined the real outcome.
func (r Repo) ResolveSubmissionTx(ctx context.Context, tx *sql.Tx, id int64, status domain.SubmissionStatus, txRef, reason string, at int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE payout_submissions SET status=?, tx_ref=COALESCE(?,tx_ref), reason=?, updated_at_unix=? WHERE id=? AND status=?`,
		status, nullable(txRef), nullable(reason), at, id, domain.SubmissionInconsistent)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetSubmission(ctx context.Context, id int64) (domain.PayoutSubmission, error) {
	return scanSubmission(r.DB.QueryRowContext(ctx, `SELECT `+submissionCols+` FROM payout_submissions WHERE id=?`, id))
}

func (r Repo) ListSubmissionsByStatus(ctx context.Context, status domain.SubmissionStatus) ([]domain.PayoutSubmission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+submissionCols+` FROM payout_submissions WHERE status=? ORDER BY created_at_unix ASC, id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PayoutSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// HasOpenSubmissionTx reports whether an entity has a submission that blocks
// another payout attempt: pending means in flight, inconsistent means a human
// has to look first.
func (r Repo) HasOpenSubmissionTx(ctx context.Context, tx *sql.Tx, entityKind, entityID string) (bool, domain.SubmissionStatus, error) {
	var status domain.SubmissionStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM payout_submissions WHERE entity_kind=? AND entity_id=? AND status IN (?,?) ORDER BY id DESC LIMIT 1`,
		entityKind, entityID, domain.SubmissionPending, domain.SubmissionInconsistent).Scan(&status)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, status, nil
}

func (r Repo) ListEvents(ctx context.Context, commitmentID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts_unix,type,COALESCE(commitment_id,''),entity_kind,COALESCE(entity_id,''),COALESCE(actor,''),payload_json FROM events WHERE commitment_id=? ORDER BY id ASC`, commitmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TSUnix, &e.Type, &e.CommitmentID, &e.EntityKind, &e.EntityID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
