package repo

import (
	"context"
	"database/sql"

	"github.com/JermWang/hodler-sub004/internal/domain"
)

// UpsertVoteTx records a vote, replacing any earlier vote by the same wallet
// on the same milestone. Last write wins.
func (r Repo) UpsertVoteTx(ctx context.Context, tx *sql.Tx, v domain.Vote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO votes(milestone_id,voter,choice,weight,created_at_unix,signature)
VALUES (?,?,?,?,?,?)
ON CONFLICT(milestone_id,voter) DO UPDATE SET choice=excluded.choice, weight=excluded.weight, created_at_unix=excluded.created_at_unix, signature=excluded.signature`,
		v.MilestoneID, v.Voter, v.Choice, v.Weight, v.CreatedAtUnix, v.Signature)
	return err
}

func (r Repo) GetVote(ctx context.Context, milestoneID, voter string) (domain.Vote, error) {
	var v domain.Vote
	err := r.DB.QueryRowContext(ctx, `SELECT milestone_id,voter,choice,weight,created_at_unix,signature FROM votes WHERE milestone_id=? AND voter=?`,
		milestoneID, voter).Scan(&v.MilestoneID, &v.Voter, &v.Choice, &v.Weight, &v.CreatedAtUnix, &v.Signature)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

func (r Repo) ListVotes(ctx context.Context, milestoneID string) ([]domain.Vote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT milestone_id,voter,choice,weight,created_at_unix,signature FROM votes WHERE milestone_id=? ORDER BY created_at_unix ASC, voter ASC`, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.MilestoneID, &v.Voter, &v.Choice, &v.Weight, &v.CreatedAtUnix, &v.Signature); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) ListVotesTx(ctx context.Context, tx *sql.Tx, milestoneID string) ([]domain.Vote, error) {
	rows, err := tx.QueryContext(ctx, `SELECT milestone_id,voter,choice,weight,created_at_unix,signature FROM votes WHERE milestone_id=? ORDER BY created_at_unix ASC, voter ASC`, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.MilestoneID, &v.Voter, &v.Choice, &v.Weight, &v.CreatedAtUnix, &v.Signature); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// TallyTx sums vote weights per choice inside the caller's transaction so
// that threshold checks see the same snapshot the transition writes against.
func (r Repo) TallyTx(ctx context.Context, tx *sql.Tx, milestoneID string) (domain.Tally, error) {
	t := domain.Tally{MilestoneID: milestoneID}
	rows, err := tx.QueryContext(ctx, `SELECT choice, COALESCE(SUM(weight),0), COUNT(*) FROM votes WHERE milestone_id=? GROUP BY choice`, milestoneID)
	if err != nil {
		return t, err
	}
	defer rows.Close()
	for rows.Next() {
		var choice domain.VoteChoice
		var weight uint64
		var n int
		if err := rows.Scan(&choice, &weight, &n); err != nil {
			return t, err
		}
		switch choice {
		case domain.VoteApprove:
			t.ApproveWeight = weight
		case domain.VoteReject:
			t.RejectWeight = weight
		}
		t.Voters += n
	}
	return t, rows.Err()
}

// Tally is the read-path variant of TallyTx.
func (r Repo) Tally(ctx context.Context, milestoneID string) (domain.Tally, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tally{}, err
	}
	defer tx.Rollback()
	return r.TallyTx(ctx, tx, milestoneID)
}
