package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JermWang/hodler-sub004/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const commitmentCols = `id,kind,escrow_address,authority,COALESCE(failure_dest,''),status,funded_amount,unlocked_total,COALESCE(vote_token_mint,''),fee_mode,created_at_unix,deadline_unix`

func scanCommitment(row interface{ Scan(...any) error }) (domain.Commitment, error) {
	var c domain.Commitment
	err := row.Scan(&c.ID, &c.Kind, &c.EscrowAddress, &c.Authority, &c.FailureDest, &c.Status,
		&c.FundedAmount, &c.UnlockedTotal, &c.VoteTokenMint, &c.FeeMode, &c.CreatedAtUnix, &c.DeadlineUnix)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertCommitmentTx(ctx context.Context, tx *sql.Tx, c domain.Commitment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO commitments(id,kind,escrow_address,authority,failure_dest,status,funded_amount,unlocked_total,vote_token_mint,fee_mode,created_at_unix,deadline_unix)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Kind, c.EscrowAddress, c.Authority, nullable(c.FailureDest), c.Status,
		c.FundedAmount, c.UnlockedTotal, nullable(c.VoteTokenMint), c.FeeMode, c.CreatedAtUnix, c.DeadlineUnix)
	return err
}

func (r Repo) GetCommitment(ctx context.Context, id string) (domain.Commitment, error) {
	return scanCommitment(r.DB.QueryRowContext(ctx, `SELECT `+commitmentCols+` FROM commitments WHERE id=?`, id))
}

func (r Repo) GetCommitmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Commitment, error) {
	return scanCommitment(tx.QueryRowContext(ctx, `SELECT `+commitmentCols+` FROM commitments WHERE id=?`, id))
}

func (r Repo) ListCommitments(ctx context.Context) ([]domain.Commitment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+commitmentCols+` FROM commitments ORDER BY created_at_unix DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// AddUnlockedTotalTx bumps the running total of lamports unlocked from the
// commitment's escrow.
func (r Repo) AddUnlockedTotalTx(ctx context.Context, tx *sql.Tx, id string, amount uint64) error {
	res, err := tx.ExecContext(ctx, `UPDATE commitments SET unlocked_total=unlocked_total+? WHERE id=?`, amount, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveCommitmentTx moves a commitment active -> resolved. Returns false if
// the commitment was not in the expected pre-state.
func (r Repo) ResolveCommitmentTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE commitments SET status=? WHERE id=? AND status=?`,
		domain.CommitmentResolved, id, domain.CommitmentActive)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const milestoneCols = `id,commitment_id,seq,title,unlock_amount,unlock_bps,status,completed_at_unix,review_opened_at_unix,due_at_unix,approved_at_unix,failed_at_unix,claimable_at_unix,became_claimable_at_unix,released_at_unix,COALESCE(released_tx_ref,'')`

func scanMilestone(row interface{ Scan(...any) error }) (domain.Milestone, error) {
	var m domain.Milestone
	err := row.Scan(&m.ID, &m.CommitmentID, &m.Seq, &m.Title, &m.UnlockAmount, &m.UnlockBps, &m.Status,
		&m.CompletedAtUnix, &m.ReviewOpenedAtUnix, &m.DueAtUnix, &m.ApprovedAtUnix, &m.FailedAtUnix,
		&m.ClaimableAtUnix, &m.BecameClaimableAtUnix, &m.ReleasedAtUnix, &m.ReleasedTxRef)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMilestoneTx(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,commitment_id,seq,title,unlock_amount,unlock_bps,status,completed_at_unix,review_opened_at_unix,due_at_unix,approved_at_unix,failed_at_unix,claimable_at_unix,became_claimable_at_unix,released_at_unix,released_tx_ref)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.CommitmentID, m.Seq, m.Title, m.UnlockAmount, m.UnlockBps, m.Status,
		m.CompletedAtUnix, m.ReviewOpenedAtUnix, m.DueAtUnix, m.ApprovedAtUnix, m.FailedAtUnix,
		m.ClaimableAtUnix, m.BecameClaimableAtUnix, m.ReleasedAtUnix, nullable(m.ReleasedTxRef))
	return err
}

func (r Repo) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	return scanMilestone(r.DB.QueryRowContext(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE id=?`, id))
}

func (r Repo) GetMilestoneTx(ctx context.Context, tx *sql.Tx, id string) (domain.Milestone, error) {
	return scanMilestone(tx.QueryRowContext(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE id=?`, id))
}

func (r Repo) ListMilestones(ctx context.Context, commitmentID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE commitment_id=? ORDER BY seq ASC`, commitmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) ListMilestonesTx(ctx context.Context, tx *sql.Tx, commitmentID string) ([]domain.Milestone, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE commitment_id=? ORDER BY seq ASC`, commitmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListMilestonesByStatus feeds the normalize sweep.
func (r Repo) ListMilestonesByStatus(ctx context.Context, status domain.MilestoneStatus) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE status=? ORDER BY commitment_id ASC, seq ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) NextMilestoneSeqTx(ctx context.Context, tx *sql.Tx, commitmentID string) (int, error) {
	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM milestones WHERE commitment_id=?`, commitmentID).Scan(&max); err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

// Every transition below is guarded by the expected pre-state: the UPDATE
// matches the current status, and a zero rows-affected result means another
// writer won the race. Callers treat false as a no-op, not an error.

// MarkCompletedTx stamps completion and opens the review window unless a
// window was already opened explicitly.
func (r Repo) MarkCompletedTx(ctx context.Context, tx *sql.Tx, id string, at int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET completed_at_unix=?, review_opened_at_unix=CASE WHEN review_opened_at_unix=0 THEN ? ELSE review_opened_at_unix END WHERE id=? AND status=? AND completed_at_unix=0`,
		at, at, id, domain.MilestoneLocked)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ApproveMilestoneTx(ctx context.Context, tx *sql.Tx, id string, approvedAt, claimableAt int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET status=?, approved_at_unix=?, claimable_at_unix=? WHERE id=? AND status=?`,
		domain.MilestoneApproved, approvedAt, claimableAt, id, domain.MilestoneLocked)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) FailMilestoneTx(ctx context.Context, tx *sql.Tx, id string, failedAt int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET status=?, failed_at_unix=? WHERE id=? AND status=?`,
		domain.MilestoneFailed, failedAt, id, domain.MilestoneLocked)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) MakeClaimableTx(ctx context.Context, tx *sql.Tx, id string, at int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET status=?, became_claimable_at_unix=? WHERE id=? AND status=?`,
		domain.MilestoneClaimable, at, id, domain.MilestoneApproved)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ReleaseMilestoneTx(ctx context.Context, tx *sql.Tx, id string, at int64, txRef string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET status=?, released_at_unix=?, released_tx_ref=? WHERE id=? AND status=?`,
		domain.MilestoneReleased, at, txRef, id, domain.MilestoneClaimable)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
