// Package engine holds the governance state machine: commitment and
// milestone lifecycle, weighted voting, and the deterministic normalize
// sweep that settles expired voting windows.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/JermWang/hodler-sub004/internal/chain"
	"github.com/JermWang/hodler-sub004/internal/config"
	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/engine/auth"
	"github.com/JermWang/hodler-sub004/internal/events"
	"github.com/JermWang/hodler-sub004/internal/oracle"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Chain  chain.Client
	Oracle oracle.Source
	Log    zerolog.Logger
	Now    func() time.Time
}

func (e Engine) now() int64 {
	if e.Now == nil {
		return time.Now().UTC().Unix()
	}
	return e.Now().UTC().Unix()
}

// VotingWindow derives the review window for a milestone. Start precedence:
// explicit review opening, then the due date, then completion. A zero start
// means the window never opened and every vote is premature.
func VotingWindow(m domain.Milestone, windowSecs int64) (start, end int64) {
	switch {
	case m.ReviewOpenedAtUnix > 0:
		start = m.ReviewOpenedAtUnix
	case m.DueAtUnix > 0:
		start = m.DueAtUnix
	case m.CompletedAtUnix > 0:
		start = m.CompletedAtUnix
	default:
		return 0, 0
	}
	return start, start + windowSecs
}

type MilestoneInput struct {
	Title        string
	UnlockAmount uint64
	UnlockBps    int
	DueAtUnix    int64
}

type CreateCommitmentInput struct {
	Kind          domain.CommitmentKind
	EscrowAddress string
	Authority     string
	FailureDest   string
	FundedAmount  uint64
	VoteTokenMint string
	FeeMode       domain.FeeMode
	DeadlineUnix  int64
	Milestones    []MilestoneInput
}

func validateMilestoneInput(in MilestoneInput) error {
	if in.Title == "" {
		return errors.Wrap(ErrInvalidState, "milestone title is required")
	}
	if in.UnlockAmount == 0 && in.UnlockBps == 0 {
		return errors.Wrap(ErrInvalidState, "milestone needs an unlock amount or bps share")
	}
	if in.UnlockAmount > 0 && in.UnlockBps > 0 {
		return errors.Wrap(ErrInvalidState, "unlock amount and bps share are mutually exclusive")
	}
	if in.UnlockBps < 0 || in.UnlockBps > 10000 {
		return errors.Wrap(ErrInvalidState, "unlock bps must be within [0,10000]")
	}
	return nil
}

// CreateCommitment registers an escrow commitment with its initial milestone
// schedule. The escrow account itself is funded on-chain before or after;
// FundedAmount is the declared escrow size all bps shares derive from.
func (e Engine) CreateCommitment(ctx context.Context, in CreateCommitmentInput) (domain.Commitment, error) {
	if in.Kind != domain.KindPersonal && in.Kind != domain.KindCreatorReward {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "unknown commitment kind")
	}
	if in.EscrowAddress == "" || in.Authority == "" {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "escrow address and authority are required")
	}
	if in.FundedAmount == 0 {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "funded amount must be positive")
	}
	if in.Kind == domain.KindCreatorReward && len(in.Milestones) == 0 {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "creator reward commitments need at least one milestone")
	}
	var totalBps int
	var totalAmount uint64
	for _, m := range in.Milestones {
		if err := validateMilestoneInput(m); err != nil {
			return domain.Commitment{}, err
		}
		totalBps += m.UnlockBps
		totalAmount += m.UnlockAmount
	}
	if totalBps > 10000 {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "milestone bps shares exceed 10000")
	}
	if totalAmount > in.FundedAmount {
		return domain.Commitment{}, errors.Wrap(ErrUnderfunded, "milestone amounts exceed the funded total")
	}
	if in.FeeMode == "" {
		in.FeeMode = domain.FeeManaged
	}

	now := e.now()
	c := domain.Commitment{
		ID:            uuid.NewString(),
		Kind:          in.Kind,
		EscrowAddress: in.EscrowAddress,
		Authority:     in.Authority,
		FailureDest:   in.FailureDest,
		Status:        domain.CommitmentActive,
		FundedAmount:  in.FundedAmount,
		VoteTokenMint: in.VoteTokenMint,
		FeeMode:       in.FeeMode,
		CreatedAtUnix: now,
		DeadlineUnix:  in.DeadlineUnix,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Commitment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCommitmentTx(ctx, tx, c); err != nil {
		return domain.Commitment{}, errors.Wrap(err, "insert commitment")
	}
	for i, mi := range in.Milestones {
		m := domain.Milestone{
			ID:           uuid.NewString(),
			CommitmentID: c.ID,
			Seq:          i + 1,
			Title:        mi.Title,
			UnlockAmount: mi.UnlockAmount,
			UnlockBps:    mi.UnlockBps,
			Status:       domain.MilestoneLocked,
			DueAtUnix:    mi.DueAtUnix,
		}
		if err := e.Repo.InsertMilestoneTx(ctx, tx, m); err != nil {
			return domain.Commitment{}, errors.Wrapf(err, "insert milestone %d", i+1)
		}
	}
	if err := e.Events.Append(ctx, tx, "commitment.created", c.ID, "commitment", c.ID, in.Authority, events.EventPayload{
		"kind": string(c.Kind), "funded_amount": c.FundedAmount, "milestones": len(in.Milestones),
	}); err != nil {
		return domain.Commitment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Commitment{}, err
	}
	e.Log.Info().Str("commitment", c.ID).Str("kind", string(c.Kind)).Msg("commitment created")
	return c, nil
}

// AppendMilestone adds one milestone to an active commitment. The authority
// signs over the append payload so milestones cannot be planted by third
// parties.
func (e Engine) AppendMilestone(ctx context.Context, commitmentID string, in MilestoneInput, signature string) (domain.Milestone, error) {
	if err := validateMilestoneInput(in); err != nil {
		return domain.Milestone{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCommitmentTx(ctx, tx, commitmentID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if c.Status != domain.CommitmentActive {
		return domain.Milestone{}, errors.Wrapf(ErrInvalidState, "commitment is %s", c.Status)
	}
	msg := auth.AppendMessage(commitmentID, in.Title, in.UnlockAmount, in.UnlockBps)
	if err := auth.Verify(c.Authority, signature, msg); err != nil {
		return domain.Milestone{}, errors.Wrap(ErrAuthentication, err.Error())
	}

	existing, err := e.Repo.ListMilestonesTx(ctx, tx, commitmentID)
	if err != nil {
		return domain.Milestone{}, err
	}
	var committedBps int
	var committedAmount uint64
	for _, m := range existing {
		committedBps += m.UnlockBps
		committedAmount += m.UnlockAmount
	}
	if committedBps+in.UnlockBps > 10000 {
		return domain.Milestone{}, errors.Wrap(ErrInvalidState, "milestone bps shares exceed 10000")
	}
	if committedAmount+in.UnlockAmount > c.FundedAmount {
		return domain.Milestone{}, errors.Wrap(ErrUnderfunded, "milestone amounts exceed the funded total")
	}

	seq, err := e.Repo.NextMilestoneSeqTx(ctx, tx, commitmentID)
	if err != nil {
		return domain.Milestone{}, err
	}
	m := domain.Milestone{
		ID:           uuid.NewString(),
		CommitmentID: commitmentID,
		Seq:          seq,
		Title:        in.Title,
		UnlockAmount: in.UnlockAmount,
		UnlockBps:    in.UnlockBps,
		Status:       domain.MilestoneLocked,
		DueAtUnix:    in.DueAtUnix,
	}
	if err := e.Repo.InsertMilestoneTx(ctx, tx, m); err != nil {
		return domain.Milestone{}, errors.Wrap(err, "insert milestone")
	}
	if err := e.Events.Append(ctx, tx, "milestone.appended", commitmentID, "milestone", m.ID, c.Authority, events.EventPayload{
		"seq": seq, "title": in.Title,
	}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// MarkComplete is the authority's claim that a milestone's work is done. It
// stamps completion and opens the review window; the status itself stays
// locked until the holders have voted and the window has been normalized.
// Completing twice is an error: the first stamp is the one the window and
// the audit trail are anchored to.
func (e Engine) MarkComplete(ctx context.Context, commitmentID, milestoneID, signature string) (domain.Milestone, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCommitmentTx(ctx, tx, commitmentID)
	if err != nil {
		return domain.Milestone{}, err
	}
	m, err := e.Repo.GetMilestoneTx(ctx, tx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if m.CommitmentID != commitmentID {
		return domain.Milestone{}, errors.Wrap(repo.ErrNotFound, "milestone does not belong to commitment")
	}
	if err := auth.Verify(c.Authority, signature, auth.CompleteMessage(commitmentID, milestoneID)); err != nil {
		return domain.Milestone{}, errors.Wrap(ErrAuthentication, err.Error())
	}
	if m.Status != domain.MilestoneLocked {
		return domain.Milestone{}, errors.Wrapf(ErrInvalidState, "milestone is %s", m.Status)
	}
	if m.CompletedAtUnix != 0 {
		return domain.Milestone{}, errors.Wrap(ErrInvalidState, "milestone already completed")
	}

	now := e.now()
	changed, err := e.Repo.MarkCompletedTx(ctx, tx, milestoneID, now)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !changed {
		// Lost the race to a concurrent completion.
		return domain.Milestone{}, errors.Wrap(ErrInvalidState, "milestone already completed")
	}
	if err := e.Events.Append(ctx, tx, "milestone.completed", commitmentID, "milestone", milestoneID, c.Authority, events.EventPayload{
		"completed_at_unix": now,
	}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	m.CompletedAtUnix = now
	if m.ReviewOpenedAtUnix == 0 {
		m.ReviewOpenedAtUnix = now
	}
	return m, nil
}

type VoteInput struct {
	MilestoneID string
	Voter       string
	Choice      domain.VoteChoice
	Weight      uint64
	Signature   string
}

// RecordVote upserts one holder's weighted vote. Re-voting replaces the
// earlier vote in full, including its weight.
func (e Engine) RecordVote(ctx context.Context, in VoteInput) (domain.Vote, error) {
	if in.Choice != domain.VoteApprove && in.Choice != domain.VoteReject {
		return domain.Vote{}, errors.Wrap(ErrInvalidState, "vote choice must be approve or reject")
	}
	if in.Weight == 0 {
		return domain.Vote{}, errors.Wrap(ErrInvalidState, "vote weight must be positive")
	}
	msg := auth.VoteMessage(in.MilestoneID, in.Voter, string(in.Choice), in.Weight)
	if err := auth.Verify(in.Voter, in.Signature, msg); err != nil {
		return domain.Vote{}, errors.Wrap(ErrAuthentication, err.Error())
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vote{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMilestoneTx(ctx, tx, in.MilestoneID)
	if err != nil {
		return domain.Vote{}, err
	}
	if m.Status != domain.MilestoneLocked {
		return domain.Vote{}, errors.Wrapf(ErrInvalidState, "milestone is %s", m.Status)
	}
	// Only completed work goes to review; a due date alone never opens the
	// window.
	if m.CompletedAtUnix == 0 {
		return domain.Vote{}, ErrVotingClosed
	}
	now := e.now()
	start, end := VotingWindow(m, e.Config.Governance.VotingWindowSecs)
	if start == 0 || now < start || now >= end {
		return domain.Vote{}, ErrVotingClosed
	}

	v := domain.Vote{
		MilestoneID:   in.MilestoneID,
		Voter:         in.Voter,
		Choice:        in.Choice,
		Weight:        in.Weight,
		CreatedAtUnix: now,
		Signature:     in.Signature,
	}
	if err := e.Repo.UpsertVoteTx(ctx, tx, v); err != nil {
		return domain.Vote{}, errors.Wrap(err, "record vote")
	}
	if err := e.Events.Append(ctx, tx, "vote.recorded", m.CommitmentID, "milestone", in.MilestoneID, in.Voter, events.EventPayload{
		"choice": string(in.Choice), "weight": in.Weight,
	}); err != nil {
		return domain.Vote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Vote{}, err
	}
	return v, nil
}

// Normalize is the deterministic settlement sweep. It closes expired voting
// windows into approved or failed, and promotes approved milestones past
// their claimable delay. Returns the milestones it transitioned plus a
// changed flag. Safe to run concurrently and repeatedly: every transition is
// pre-state guarded, so a lost race is a silent no-op.
func (e Engine) Normalize(ctx context.Context) ([]domain.Milestone, bool, error) {
	var transitioned []domain.Milestone
	now := e.now()

	locked, err := e.Repo.ListMilestonesByStatus(ctx, domain.MilestoneLocked)
	if err != nil {
		return nil, false, err
	}
	for _, m := range locked {
		// Work that was never marked complete has no window to settle,
		// regardless of its due date.
		if m.CompletedAtUnix == 0 {
			continue
		}
		start, end := VotingWindow(m, e.Config.Governance.VotingWindowSecs)
		if start == 0 || now < end {
			continue
		}
		settled, did, err := e.settleWindow(ctx, m, now)
		if err != nil {
			return transitioned, len(transitioned) > 0, err
		}
		if did {
			transitioned = append(transitioned, settled)
		}
	}

	approved, err := e.Repo.ListMilestonesByStatus(ctx, domain.MilestoneApproved)
	if err != nil {
		return transitioned, len(transitioned) > 0, err
	}
	for _, m := range approved {
		if m.ClaimableAtUnix == 0 || now < m.ClaimableAtUnix {
			continue
		}
		promoted, did, err := e.promoteClaimable(ctx, m, now)
		if err != nil {
			return transitioned, len(transitioned) > 0, err
		}
		if did {
			transitioned = append(transitioned, promoted)
		}
	}
	return transitioned, len(transitioned) > 0, nil
}

// settleWindow tallies inside the same transaction that writes the
// transition, so the decision and the votes it was made from cannot drift.
func (e Engine) settleWindow(ctx context.Context, m domain.Milestone, now int64) (domain.Milestone, bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, false, err
	}
	defer tx.Rollback()

	tally, err := e.Repo.TallyTx(ctx, tx, m.ID)
	if err != nil {
		return domain.Milestone{}, false, err
	}
	approvedWins := tally.ApproveWeight >= e.Config.Governance.ApprovalThresholdWeight

	var did bool
	var evtType string
	if approvedWins {
		claimableAt := now + e.Config.Governance.ClaimableDelaySecs
		did, err = e.Repo.ApproveMilestoneTx(ctx, tx, m.ID, now, claimableAt)
		evtType = "milestone.approved"
		m.Status = domain.MilestoneApproved
		m.ApprovedAtUnix = now
		m.ClaimableAtUnix = claimableAt
	} else {
		did, err = e.Repo.FailMilestoneTx(ctx, tx, m.ID, now)
		evtType = "milestone.failed"
		m.Status = domain.MilestoneFailed
		m.FailedAtUnix = now
	}
	if err != nil {
		return domain.Milestone{}, false, err
	}
	if !did {
		return domain.Milestone{}, false, tx.Commit()
	}
	if err := e.Events.Append(ctx, tx, evtType, m.CommitmentID, "milestone", m.ID, "", events.EventPayload{
		"approve_weight": tally.ApproveWeight, "reject_weight": tally.RejectWeight, "voters": tally.Voters,
	}); err != nil {
		return domain.Milestone{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, false, err
	}
	e.Log.Info().Str("milestone", m.ID).Str("event", evtType).
		Uint64("approve", tally.ApproveWeight).Uint64("reject", tally.RejectWeight).Msg("voting window settled")
	return m, true, nil
}

func (e Engine) promoteClaimable(ctx context.Context, m domain.Milestone, now int64) (domain.Milestone, bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, false, err
	}
	defer tx.Rollback()

	did, err := e.Repo.MakeClaimableTx(ctx, tx, m.ID, now)
	if err != nil {
		return domain.Milestone{}, false, err
	}
	if !did {
		return domain.Milestone{}, false, tx.Commit()
	}
	if err := e.Events.Append(ctx, tx, "milestone.claimable", m.CommitmentID, "milestone", m.ID, "", nil); err != nil {
		return domain.Milestone{}, false, err
	}
	m.Status = domain.MilestoneClaimable
	m.BecameClaimableAtUnix = now
	return m, true, tx.Commit()
}

// Accessors used by the API layer.

func (e Engine) GetCommitment(ctx context.Context, id string) (domain.Commitment, error) {
	return e.Repo.GetCommitment(ctx, id)
}

func (e Engine) ListCommitments(ctx context.Context) ([]domain.Commitment, error) {
	return e.Repo.ListCommitments(ctx)
}

func (e Engine) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	return e.Repo.GetMilestone(ctx, id)
}

func (e Engine) ListMilestones(ctx context.Context, commitmentID string) ([]domain.Milestone, error) {
	return e.Repo.ListMilestones(ctx, commitmentID)
}

func (e Engine) GetTally(ctx context.Context, milestoneID string) (domain.Tally, error) {
	if _, err := e.Repo.GetMilestone(ctx, milestoneID); err != nil {
		return domain.Tally{}, err
	}
	return e.Repo.Tally(ctx, milestoneID)
}

func (e Engine) ListVotes(ctx context.Context, milestoneID string) ([]domain.Vote, error) {
	return e.Repo.ListVotes(ctx, milestoneID)
}

func (e Engine) ListEvents(ctx context.Context, commitmentID string) ([]domain.Event, error) {
	return e.Repo.ListEvents(ctx, commitmentID)
}
