package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JermWang/hodler-sub004/internal/config"
	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/engine/auth"
	"github.com/JermWang/hodler-sub004/internal/events"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

// beginSubmission opens a reconciliation-ledger row before any lamport moves.
// A pending row for the entity means a transfer is in flight; an inconsistent
// row means a transfer may have landed unrecorded and nothing more may move
// until an operator resolves it.
func (e Engine) beginSubmission(ctx context.Context, entityKind, entityID, destination string, amount uint64) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	open, status, err := e.Repo.HasOpenSubmissionTx(ctx, tx, entityKind, entityID)
	if err != nil {
		return 0, err
	}
	if open {
		if status == domain.SubmissionInconsistent {
			return 0, errors.Wrapf(ErrInconsistent, "%s %s", entityKind, entityID)
		}
		return 0, errors.Wrapf(ErrInvalidState, "transfer for %s %s already in flight", entityKind, entityID)
	}
	now := e.now()
	id, err := e.Repo.InsertSubmissionTx(ctx, tx, domain.PayoutSubmission{
		EntityKind:    entityKind,
		EntityID:      entityID,
		Destination:   destination,
		Amount:        amount,
		Status:        domain.SubmissionPending,
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	})
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (e Engine) settleSubmission(ctx context.Context, id int64, status domain.SubmissionStatus, txRef, reason string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.UpdateSubmissionTx(ctx, tx, id, status, txRef, reason, e.now()); err != nil {
		return err
	}
	return tx.Commit()
}

// transfer wraps the chain call with ledger bookkeeping. On a definitive
// failure the submission is marked failed and the caller gets
// ErrSubmissionFailed; the guarded state was never advanced, so a retry is
// safe.
func (e Engine) transfer(ctx context.Context, submissionID int64, from, to string, amount uint64) (string, error) {
	res, err := e.Chain.Transfer(ctx, from, to, amount)
	if err != nil {
		if serr := e.settleSubmission(ctx, submissionID, domain.SubmissionFailed, "", err.Error()); serr != nil {
			e.Log.Error().Err(serr).Int64("submission", submissionID).Msg("failed to settle submission after transfer error")
		}
		return "", errors.Wrap(ErrSubmissionFailed, err.Error())
	}
	return res.TxRef, nil
}

func (e Engine) checkFunded(ctx context.Context, escrow string, amount uint64) error {
	bal, err := e.Chain.Balance(ctx, escrow)
	if err != nil {
		return errors.Wrap(err, "read escrow balance")
	}
	if bal < amount {
		return errors.Wrapf(ErrUnderfunded, "escrow holds %d, need %d", bal, amount)
	}
	return nil
}

// Release pays out a claimable milestone's unlock to the commitment
// authority. An underfunded escrow leaves the milestone claimable; it is not
// a failure of the milestone, only of this attempt.
func (e Engine) Release(ctx context.Context, milestoneID string) (domain.Milestone, error) {
	m, err := e.Repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if m.Status != domain.MilestoneClaimable {
		return domain.Milestone{}, errors.Wrapf(ErrInvalidState, "milestone is %s", m.Status)
	}
	c, err := e.Repo.GetCommitment(ctx, m.CommitmentID)
	if err != nil {
		return domain.Milestone{}, err
	}
	amount := m.Unlock(c.FundedAmount)
	if err := e.checkFunded(ctx, c.EscrowAddress, amount); err != nil {
		return domain.Milestone{}, err
	}

	subID, err := e.beginSubmission(ctx, domain.EntityRelease, milestoneID, c.Authority, amount)
	if err != nil {
		return domain.Milestone{}, err
	}
	txRef, err := e.transfer(ctx, subID, c.EscrowAddress, c.Authority, amount)
	if err != nil {
		return domain.Milestone{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()

	now := e.now()
	if _, err := e.Repo.UpdateSubmissionTx(ctx, tx, subID, domain.SubmissionConfirmed, txRef, "", now); err != nil {
		return domain.Milestone{}, err
	}
	released, err := e.Repo.ReleaseMilestoneTx(ctx, tx, milestoneID, now, txRef)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !released {
		return domain.Milestone{}, errors.Wrapf(ErrInvalidState, "milestone %s left claimable state mid-release", milestoneID)
	}
	if err := e.Repo.AddUnlockedTotalTx(ctx, tx, c.ID, amount); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, "milestone.released", c.ID, "milestone", milestoneID, c.Authority, events.EventPayload{
		"amount": amount, "tx_ref": txRef,
	}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}

	m.Status = domain.MilestoneReleased
	m.ReleasedAtUnix = now
	m.ReleasedTxRef = txRef
	e.Log.Info().Str("milestone", milestoneID).Uint64("amount", amount).Str("tx", txRef).Msg("milestone released")
	return m, nil
}

func eligibleVotes(votes []domain.Vote, policy config.FailureEligibility) []domain.Vote {
	if policy == config.EligibleAll {
		return votes
	}
	want := domain.VoteApprove
	if policy == config.EligibleReject {
		want = domain.VoteReject
	}
	var out []domain.Vote
	for _, v := range votes {
		if v.Choice == want {
			out = append(out, v)
		}
	}
	return out
}

// CreateFailureDistribution splits a failed milestone's forfeited unlock:
// half to the buyback wallet, the rest to a voter pot carved up
// weight-proportionally among eligible voters. Integer division truncates;
// the remainder stays in escrow. At most one distribution per milestone.
func (e Engine) CreateFailureDistribution(ctx context.Context, milestoneID string) (domain.FailureDistribution, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FailureDistribution{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMilestoneTx(ctx, tx, milestoneID)
	if err != nil {
		return domain.FailureDistribution{}, err
	}
	if m.Status != domain.MilestoneFailed {
		return domain.FailureDistribution{}, errors.Wrapf(ErrInvalidState, "milestone is %s", m.Status)
	}
	if _, err := e.Repo.GetDistributionByMilestoneTx(ctx, tx, milestoneID); err == nil {
		return domain.FailureDistribution{}, errors.Wrap(ErrAlreadyExists, "failure distribution")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.FailureDistribution{}, err
	}

	c, err := e.Repo.GetCommitmentTx(ctx, tx, m.CommitmentID)
	if err != nil {
		return domain.FailureDistribution{}, err
	}

	forfeited := m.Unlock(c.FundedAmount)
	buyback := forfeited / 2
	voterPot := forfeited - buyback

	votes, err := e.Repo.ListVotesTx(ctx, tx, milestoneID)
	if err != nil {
		return domain.FailureDistribution{}, err
	}
	eligible := eligibleVotes(votes, e.Config.Payouts.FailureEligibility)
	var eligibleWeight uint64
	for _, v := range eligible {
		eligibleWeight += v.Weight
	}

	now := e.now()
	d := domain.FailureDistribution{
		ID:             uuid.NewString(),
		MilestoneID:    milestoneID,
		Forfeited:      forfeited,
		BuybackAmount:  buyback,
		VoterPot:       voterPot,
		EligibleWeight: eligibleWeight,
		CreatedAtUnix:  now,
	}
	if err := e.Repo.InsertDistributionTx(ctx, tx, d); err != nil {
		return domain.FailureDistribution{}, errors.Wrap(err, "insert distribution")
	}
	if eligibleWeight > 0 {
		for _, v := range eligible {
			amount := voterPot * v.Weight / eligibleWeight
			if err := e.Repo.InsertClaimTx(ctx, tx, domain.FailureClaim{
				DistributionID: d.ID,
				Voter:          v.Voter,
				Amount:         amount,
				CreatedAtUnix:  now,
			}); err != nil {
				return domain.FailureDistribution{}, errors.Wrapf(err, "insert claim for %s", v.Voter)
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "distribution.created", c.ID, "distribution", d.ID, "", events.EventPayload{
		"milestone_id": milestoneID, "forfeited": forfeited, "buyback": buyback, "voter_pot": voterPot,
		"eligible_weight": eligibleWeight, "claims": len(eligible),
	}); err != nil {
		return domain.FailureDistribution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FailureDistribution{}, err
	}

	if buyback > 0 && e.Config.Chain.BuybackWallet != "" {
		if err := e.submitBuyback(ctx, c, d); err != nil {
			// The distribution stands; the buyback leg alone failed and
			// can be retried by the reconciler or another create call.
			e.Log.Error().Err(err).Str("distribution", d.ID).Msg("buyback submission failed")
			return d, err
		}
	}
	return d, nil
}

func (e Engine) submitBuyback(ctx context.Context, c domain.Commitment, d domain.FailureDistribution) error {
	if err := e.checkFunded(ctx, c.EscrowAddress, d.BuybackAmount); err != nil {
		return err
	}
	subID, err := e.beginSubmission(ctx, domain.EntityBuyback, d.ID, e.Config.Chain.BuybackWallet, d.BuybackAmount)
	if err != nil {
		return err
	}
	txRef, err := e.transfer(ctx, subID, c.EscrowAddress, e.Config.Chain.BuybackWallet, d.BuybackAmount)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.UpdateSubmissionTx(ctx, tx, subID, domain.SubmissionConfirmed, txRef, "", e.now()); err != nil {
		return err
	}
	if err := e.Repo.SetBuybackTxRefTx(ctx, tx, d.ID, txRef); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "distribution.buyback", c.ID, "distribution", d.ID, "", events.EventPayload{
		"amount": d.BuybackAmount, "tx_ref": txRef,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ClaimFailurePayout pays one voter's precomputed entitlement from a failure
// distribution, exactly once. The claim authorization is a fresh wallet
// signature; a captured one expires with the freshness window.
func (e Engine) ClaimFailurePayout(ctx context.Context, milestoneID, voter string, tsUnix int64, signature string) (domain.FailureClaim, error) {
	msg := auth.ClaimMessage(milestoneID, voter, tsUnix)
	if err := auth.VerifyFresh(voter, signature, msg, tsUnix, e.now(), e.Config.Governance.ClaimFreshnessSecs); err != nil {
		return domain.FailureClaim{}, errors.Wrap(ErrAuthentication, err.Error())
	}

	d, err := e.Repo.GetDistributionByMilestone(ctx, milestoneID)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	claim, err := e.Repo.GetClaim(ctx, d.ID, voter)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	if claim.Claimed {
		return domain.FailureClaim{}, errors.Wrapf(ErrAlreadyClaimed, "voter %s", voter)
	}
	if claim.Amount == 0 {
		return domain.FailureClaim{}, errors.Wrap(ErrNothingToClaim, "entitlement rounds to zero")
	}
	m, err := e.Repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	c, err := e.Repo.GetCommitment(ctx, m.CommitmentID)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	if err := e.checkFunded(ctx, c.EscrowAddress, claim.Amount); err != nil {
		return domain.FailureClaim{}, err
	}

	entityID := fmt.Sprintf("%s|%s", d.ID, voter)
	subID, err := e.beginSubmission(ctx, domain.EntityFailureClaim, entityID, voter, claim.Amount)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	txRef, err := e.transfer(ctx, subID, c.EscrowAddress, voter, claim.Amount)
	if err != nil {
		return domain.FailureClaim{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	defer tx.Rollback()
	now := e.now()
	if _, err := e.Repo.UpdateSubmissionTx(ctx, tx, subID, domain.SubmissionConfirmed, txRef, "", now); err != nil {
		return domain.FailureClaim{}, err
	}
	paid, err := e.Repo.MarkClaimPaidTx(ctx, tx, d.ID, voter, txRef, now)
	if err != nil {
		return domain.FailureClaim{}, err
	}
	if !paid {
		return domain.FailureClaim{}, errors.Wrapf(ErrAlreadyClaimed, "voter %s", voter)
	}
	if err := e.Events.Append(ctx, tx, "claim.paid", c.ID, "distribution", d.ID, voter, events.EventPayload{
		"amount": claim.Amount, "tx_ref": txRef,
	}); err != nil {
		return domain.FailureClaim{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FailureClaim{}, err
	}

	claim.Claimed = true
	claim.ClaimTxRef = txRef
	claim.ClaimedAtUnix = now
	return claim, nil
}

// AccrueVoteRewards runs one reward pass over a commitment: every wallet that
// has voted on any of its milestones accrues vote_reward_rate_bps of its
// current holding value. Each call opens a fresh pass with its own ID, so the
// accrual cadence belongs to the caller; the unique key only dedupes wallets
// within a single pass.
func (e Engine) AccrueVoteRewards(ctx context.Context, commitmentID string) ([]domain.VoteRewardEntry, error) {
	c, err := e.Repo.GetCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CommitmentActive {
		return nil, errors.Wrapf(ErrInvalidState, "commitment is %s", c.Status)
	}
	if e.Oracle == nil || e.Config.Payouts.VoteRewardRateBps == 0 {
		return nil, nil
	}
	milestones, err := e.Repo.ListMilestones(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	wallets := map[string]struct{}{}
	for _, m := range milestones {
		votes, err := e.Repo.ListVotes(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range votes {
			wallets[v.Voter] = struct{}{}
		}
	}
	if len(wallets) == 0 {
		return nil, nil
	}

	passID := uuid.NewString()
	now := e.now()
	rate := uint64(e.Config.Payouts.VoteRewardRateBps)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var out []domain.VoteRewardEntry
	for w := range wallets {
		value, err := e.Oracle.HoldingValue(ctx, w, c.VoteTokenMint)
		if err != nil {
			e.Log.Warn().Err(err).Str("wallet", w).Msg("skipping reward accrual, holding value unavailable")
			continue
		}
		amount := value * rate / 10000
		if amount == 0 {
			continue
		}
		entry := domain.VoteRewardEntry{
			ID:             uuid.NewString(),
			CommitmentID:   commitmentID,
			DistributionID: passID,
			Wallet:         w,
			Amount:         amount,
			CreatedAtUnix:  now,
		}
		if err := e.Repo.InsertRewardEntryTx(ctx, tx, entry); err != nil {
			return nil, errors.Wrapf(err, "accrue reward for %s", w)
		}
		out = append(out, entry)
	}
	if len(out) == 0 {
		return nil, tx.Commit()
	}
	if err := e.Events.Append(ctx, tx, "rewards.accrued", commitmentID, "rewards", passID, "", events.EventPayload{
		"entries": len(out),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimVoteRewardsAll sweeps every unclaimed reward entry for a wallet into a
// single treasury transfer.
func (e Engine) ClaimVoteRewardsAll(ctx context.Context, wallet string, tsUnix int64, signature string) (uint64, string, error) {
	msg := auth.ClaimMessage("vote-rewards", wallet, tsUnix)
	if err := auth.VerifyFresh(wallet, signature, msg, tsUnix, e.now(), e.Config.Governance.ClaimFreshnessSecs); err != nil {
		return 0, "", errors.Wrap(ErrAuthentication, err.Error())
	}
	if e.Config.Chain.RewardsTreasury == "" {
		return 0, "", errors.Wrap(ErrInvalidState, "no rewards treasury configured")
	}

	entries, err := e.Repo.ListUnclaimedRewards(ctx, wallet)
	if err != nil {
		return 0, "", err
	}
	if len(entries) == 0 {
		return 0, "", ErrNothingToClaim
	}
	var total uint64
	for _, en := range entries {
		total += en.Amount
	}
	if err := e.checkFunded(ctx, e.Config.Chain.RewardsTreasury, total); err != nil {
		return 0, "", err
	}

	subID, err := e.beginSubmission(ctx, domain.EntityVoteRewards, wallet, wallet, total)
	if err != nil {
		return 0, "", err
	}
	txRef, err := e.transfer(ctx, subID, e.Config.Chain.RewardsTreasury, wallet, total)
	if err != nil {
		return 0, "", err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", err
	}
	defer tx.Rollback()
	if _, err := e.Repo.UpdateSubmissionTx(ctx, tx, subID, domain.SubmissionConfirmed, txRef, "", e.now()); err != nil {
		return 0, "", err
	}
	for _, en := range entries {
		if _, err := e.Repo.MarkRewardClaimedTx(ctx, tx, en.ID, txRef); err != nil {
			return 0, "", err
		}
	}
	if err := e.Events.Append(ctx, tx, "rewards.claimed", "", "rewards", wallet, wallet, events.EventPayload{
		"amount": total, "entries": len(entries), "tx_ref": txRef,
	}); err != nil {
		return 0, "", err
	}
	if err := tx.Commit(); err != nil {
		return 0, "", err
	}
	return total, txRef, nil
}

// ResolvePersonal returns a matured personal time-lock to its authority and
// closes the commitment.
func (e Engine) ResolvePersonal(ctx context.Context, commitmentID string, tsUnix int64, signature string) (domain.Commitment, error) {
	c, err := e.Repo.GetCommitment(ctx, commitmentID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if c.Kind != domain.KindPersonal {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "not a personal commitment")
	}
	if c.Status != domain.CommitmentActive {
		return domain.Commitment{}, errors.Wrapf(ErrInvalidState, "commitment is %s", c.Status)
	}
	now := e.now()
	if c.DeadlineUnix == 0 || now < c.DeadlineUnix {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "lock has not matured")
	}
	msg := auth.ClaimMessage(commitmentID, c.Authority, tsUnix)
	if err := auth.VerifyFresh(c.Authority, signature, msg, tsUnix, now, e.Config.Governance.ClaimFreshnessSecs); err != nil {
		return domain.Commitment{}, errors.Wrap(ErrAuthentication, err.Error())
	}
	if err := e.checkFunded(ctx, c.EscrowAddress, c.FundedAmount); err != nil {
		return domain.Commitment{}, err
	}

	subID, err := e.beginSubmission(ctx, domain.EntityResolve, commitmentID, c.Authority, c.FundedAmount)
	if err != nil {
		return domain.Commitment{}, err
	}
	txRef, err := e.transfer(ctx, subID, c.EscrowAddress, c.Authority, c.FundedAmount)
	if err != nil {
		return domain.Commitment{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Commitment{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.UpdateSubmissionTx(ctx, tx, subID, domain.SubmissionConfirmed, txRef, "", e.now()); err != nil {
		return domain.Commitment{}, err
	}
	resolved, err := e.Repo.ResolveCommitmentTx(ctx, tx, commitmentID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if !resolved {
		return domain.Commitment{}, errors.Wrap(ErrInvalidState, "commitment left active state mid-resolve")
	}
	if err := e.Repo.AddUnlockedTotalTx(ctx, tx, commitmentID, c.FundedAmount); err != nil {
		return domain.Commitment{}, err
	}
	if err := e.Events.Append(ctx, tx, "commitment.resolved", commitmentID, "commitment", commitmentID, c.Authority, events.EventPayload{
		"amount": c.FundedAmount, "tx_ref": txRef,
	}); err != nil {
		return domain.Commitment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Commitment{}, err
	}

	c.Status = domain.CommitmentResolved
	c.UnlockedTotal += c.FundedAmount
	return c, nil
}

// GetDistribution and claim accessors for the API layer.

func (e Engine) GetFailureDistribution(ctx context.Context, milestoneID string) (domain.FailureDistribution, error) {
	return e.Repo.GetDistributionByMilestone(ctx, milestoneID)
}

func (e Engine) ListFailureClaims(ctx context.Context, milestoneID string) ([]domain.FailureClaim, error) {
	d, err := e.Repo.GetDistributionByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListClaims(ctx, d.ID)
}

func (e Engine) ListUnclaimedRewards(ctx context.Context, wallet string) ([]domain.VoteRewardEntry, error) {
	return e.Repo.ListUnclaimedRewards(ctx, wallet)
}
