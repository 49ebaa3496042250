package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/engine"
	"github.com/JermWang/hodler-sub004/internal/engine/auth"
	"github.com/JermWang/hodler-sub004/internal/oracle"
)

// driveToClaimable completes, approves and promotes the milestone so it is
// ready for release.
func (env *testEnv) driveToClaimable(t *testing.T, c domain.Commitment, m domain.Milestone) domain.Milestone {
	t.Helper()
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	if err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteApprove, 150); err != nil {
		t.Fatal(err)
	}
	env.NowUnix = 2000 + 86400
	if _, _, err := env.Engine.Normalize(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	env.NowUnix = got.ClaimableAtUnix
	if _, _, err := env.Engine.Normalize(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneClaimable {
		t.Fatalf("status = %s, want claimable", got.Status)
	}
	return got
}

// driveToFailed completes the milestone and lets the window expire with the
// given votes on record.
func (env *testEnv) driveToFailed(t *testing.T, c domain.Commitment, m domain.Milestone, voters []solana.PrivateKey, choices []domain.VoteChoice, weights []uint64) domain.Milestone {
	t.Helper()
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	for i, v := range voters {
		if err := env.vote(t, m, v, choices[i], weights[i]); err != nil {
			t.Fatal(err)
		}
	}
	env.NowUnix = 2000 + 86400
	if _, _, err := env.Engine.Normalize(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	return got
}

func TestReleasePaysAuthority(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 400})
	m := env.firstMilestone(t, c.ID)
	env.driveToClaimable(t, c, m)

	released, err := env.Engine.Release(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != domain.MilestoneReleased || released.ReleasedTxRef == "" {
		t.Fatalf("released = %+v", released)
	}
	if got := env.Chain.balances[c.Authority]; got != 400 {
		t.Fatalf("authority balance = %d, want 400", got)
	}
	cAfter, _ := env.Engine.GetCommitment(env.Ctx, c.ID)
	if cAfter.UnlockedTotal != 400 {
		t.Fatalf("unlocked total = %d, want 400", cAfter.UnlockedTotal)
	}

	// A released milestone cannot be released again.
	if _, err := env.Engine.Release(env.Ctx, m.ID); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("double release: got %v, want ErrInvalidState", err)
	}
}

func TestReleaseUnderfundedEscrow(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 400})
	m := env.firstMilestone(t, c.ID)
	env.driveToClaimable(t, c, m)
	env.Chain.balances[c.EscrowAddress] = 100

	_, err := env.Engine.Release(env.Ctx, m.ID)
	if !errors.Is(err, engine.ErrUnderfunded) {
		t.Fatalf("got %v, want ErrUnderfunded", err)
	}
	// The milestone stays claimable; only this attempt failed.
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneClaimable {
		t.Fatalf("status = %s, want claimable", got.Status)
	}
}

func TestReleaseTransferFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 400})
	m := env.firstMilestone(t, c.ID)
	env.driveToClaimable(t, c, m)

	env.Chain.failNext = true
	_, err := env.Engine.Release(env.Ctx, m.ID)
	if !errors.Is(err, engine.ErrSubmissionFailed) {
		t.Fatalf("got %v, want ErrSubmissionFailed", err)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneClaimable {
		t.Fatalf("status after failed transfer = %s, want claimable", got.Status)
	}

	// The failed submission does not block the retry.
	if _, err := env.Engine.Release(env.Ctx, m.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestFailureDistributionSplit(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PrivateKey
	env.driveToFailed(t, c, m,
		[]solana.PrivateKey{alice, bob},
		[]domain.VoteChoice{domain.VoteApprove, domain.VoteReject},
		[]uint64{30, 10})

	d, err := env.Engine.CreateFailureDistribution(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("create distribution: %v", err)
	}
	if d.Forfeited != 100 || d.BuybackAmount != 50 || d.VoterPot != 50 {
		t.Fatalf("split = %+v, want 100/50/50", d)
	}
	if d.EligibleWeight != 40 {
		t.Fatalf("eligible weight = %d, want 40", d.EligibleWeight)
	}
	// Buyback leg settled against the configured wallet.
	if got := env.Chain.balances[env.Buyback.PublicKey().String()]; got != 50 {
		t.Fatalf("buyback balance = %d, want 50", got)
	}

	claims, err := env.Engine.ListFailureClaims(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	byVoter := map[string]uint64{}
	var sum uint64
	for _, cl := range claims {
		byVoter[cl.Voter] = cl.Amount
		sum += cl.Amount
	}
	// 50*30/40 and 50*10/40, truncated.
	if byVoter[alice.PublicKey().String()] != 37 || byVoter[bob.PublicKey().String()] != 12 {
		t.Fatalf("entitlements = %v, want alice 37, bob 12", byVoter)
	}
	if sum > d.VoterPot {
		t.Fatalf("entitlements sum %d exceeds pot %d", sum, d.VoterPot)
	}

	// At most one distribution per milestone.
	if _, err := env.Engine.CreateFailureDistribution(env.Ctx, m.ID); !errors.Is(err, engine.ErrAlreadyExists) {
		t.Fatalf("second distribution: got %v, want ErrAlreadyExists", err)
	}
}

func TestDistributionRequiresFailedMilestone(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	if _, err := env.Engine.CreateFailureDistribution(env.Ctx, m.ID); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestClaimFailurePayoutOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	alice := solana.NewWallet().PrivateKey
	env.driveToFailed(t, c, m,
		[]solana.PrivateKey{alice},
		[]domain.VoteChoice{domain.VoteReject},
		[]uint64{40})
	if _, err := env.Engine.CreateFailureDistribution(env.Ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	addr := alice.PublicKey().String()
	ts := env.NowUnix
	sig := signMsg(t, alice, auth.ClaimMessage(m.ID, addr, ts))
	claim, err := env.Engine.ClaimFailurePayout(env.Ctx, m.ID, addr, ts, sig)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claim.Claimed || claim.Amount != 50 || claim.ClaimTxRef == "" {
		t.Fatalf("claim = %+v", claim)
	}
	if got := env.Chain.balances[addr]; got != 50 {
		t.Fatalf("voter balance = %d, want 50", got)
	}

	sig = signMsg(t, alice, auth.ClaimMessage(m.ID, addr, ts))
	if _, err := env.Engine.ClaimFailurePayout(env.Ctx, m.ID, addr, ts, sig); !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Fatalf("second claim: got %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimRejectsStaleSignature(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	alice := solana.NewWallet().PrivateKey
	env.driveToFailed(t, c, m,
		[]solana.PrivateKey{alice},
		[]domain.VoteChoice{domain.VoteReject},
		[]uint64{40})
	if _, err := env.Engine.CreateFailureDistribution(env.Ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	addr := alice.PublicKey().String()
	// Signed well outside the freshness window.
	ts := env.NowUnix - 3600
	sig := signMsg(t, alice, auth.ClaimMessage(m.ID, addr, ts))
	if _, err := env.Engine.ClaimFailurePayout(env.Ctx, m.ID, addr, ts, sig); !errors.Is(err, engine.ErrAuthentication) {
		t.Fatalf("got %v, want ErrAuthentication", err)
	}
}

func TestClaimZeroEntitlement(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 3})
	m := env.firstMilestone(t, c.ID)
	whale := solana.NewWallet().PrivateKey
	dust := solana.NewWallet().PrivateKey
	// Pot is 2; dust's share truncates to zero.
	env.driveToFailed(t, c, m,
		[]solana.PrivateKey{whale, dust},
		[]domain.VoteChoice{domain.VoteReject, domain.VoteReject},
		[]uint64{1000, 1})
	if _, err := env.Engine.CreateFailureDistribution(env.Ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	addr := dust.PublicKey().String()
	ts := env.NowUnix
	sig := signMsg(t, dust, auth.ClaimMessage(m.ID, addr, ts))
	if _, err := env.Engine.ClaimFailurePayout(env.Ctx, m.ID, addr, ts, sig); !errors.Is(err, engine.ErrNothingToClaim) {
		t.Fatalf("got %v, want ErrNothingToClaim", err)
	}
}

func TestVoteRewardsAccrueAndClaim(t *testing.T) {
	env := newTestEnv(t)
	treasury := solana.NewWallet().PrivateKey.PublicKey().String()
	env.Engine.Config.Chain.RewardsTreasury = treasury
	env.Chain.balances[treasury] = 10000
	// Fixed holding value: 20000 units at 50 bps accrues 100 per pass.
	env.Engine.Oracle = oracle.SourceFunc(func(ctx context.Context, wallet, mint string) (uint64, error) {
		return 20000, nil
	})

	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	alice := solana.NewWallet().PrivateKey
	if err := env.vote(t, m, alice, domain.VoteApprove, 150); err != nil {
		t.Fatal(err)
	}

	entries, err := env.Engine.AccrueVoteRewards(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 100 {
		t.Fatalf("entries = %+v, want one of 100", entries)
	}

	addr := alice.PublicKey().String()
	ts := env.NowUnix
	sig := signMsg(t, alice, auth.ClaimMessage("vote-rewards", addr, ts))
	total, txRef, err := env.Engine.ClaimVoteRewardsAll(env.Ctx, addr, ts, sig)
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	if total != 100 || txRef == "" {
		t.Fatalf("total = %d tx = %q", total, txRef)
	}
	if got := env.Chain.balances[addr]; got != 100 {
		t.Fatalf("wallet balance = %d, want 100", got)
	}

	// Nothing left after the sweep.
	sig = signMsg(t, alice, auth.ClaimMessage("vote-rewards", addr, ts))
	if _, _, err := env.Engine.ClaimVoteRewardsAll(env.Ctx, addr, ts, sig); !errors.Is(err, engine.ErrNothingToClaim) {
		t.Fatalf("second sweep: got %v, want ErrNothingToClaim", err)
	}
}

func TestReleaseConcurrentCallsPayOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 400})
	m := env.firstMilestone(t, c.ID)
	env.driveToClaimable(t, c, m)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Release(env.Ctx, m.ID)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Fatalf("successes = %d (errs %v), want exactly 1", ok, errs)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneReleased {
		t.Fatalf("status = %s, want released", got.Status)
	}
	cAfter, _ := env.Engine.GetCommitment(env.Ctx, c.ID)
	if cAfter.UnlockedTotal != 400 {
		t.Fatalf("unlocked total = %d, want 400", cAfter.UnlockedTotal)
	}
	events, err := env.Engine.ListEvents(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	var releases int
	for _, ev := range events {
		if ev.Type == "milestone.released" {
			releases++
		}
	}
	if releases != 1 {
		t.Fatalf("release events = %d, want 1", releases)
	}
}

func TestResolvePersonalLock(t *testing.T) {
	env := newTestEnv(t)
	escrow := solana.NewWallet().PrivateKey.PublicKey().String()
	c, err := env.Engine.CreateCommitment(env.Ctx, engine.CreateCommitmentInput{
		Kind:          domain.KindPersonal,
		EscrowAddress: escrow,
		Authority:     env.Authority.PublicKey().String(),
		FundedAmount:  500,
		DeadlineUnix:  5000,
	})
	if err != nil {
		t.Fatalf("create personal: %v", err)
	}
	env.Chain.balances[escrow] = 500

	// Before maturity.
	env.NowUnix = 4000
	ts := env.NowUnix
	sig := signMsg(t, env.Authority, auth.ClaimMessage(c.ID, c.Authority, ts))
	if _, err := env.Engine.ResolvePersonal(env.Ctx, c.ID, ts, sig); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("early resolve: got %v, want ErrInvalidState", err)
	}

	env.NowUnix = 5000
	ts = env.NowUnix
	sig = signMsg(t, env.Authority, auth.ClaimMessage(c.ID, c.Authority, ts))
	resolved, err := env.Engine.ResolvePersonal(env.Ctx, c.ID, ts, sig)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.CommitmentResolved || resolved.UnlockedTotal != 500 {
		t.Fatalf("resolved = %+v", resolved)
	}
	if got := env.Chain.balances[c.Authority]; got != 500 {
		t.Fatalf("authority balance = %d, want 500", got)
	}
}
