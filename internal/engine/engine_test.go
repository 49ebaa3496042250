package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/JermWang/hodler-sub004/internal/chain"
	"github.com/JermWang/hodler-sub004/internal/config"
	"github.com/JermWang/hodler-sub004/internal/db"
	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/engine"
	"github.com/JermWang/hodler-sub004/internal/engine/auth"
	"github.com/JermWang/hodler-sub004/internal/events"
	"github.com/JermWang/hodler-sub004/internal/migrate"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

type transferRec struct {
	From, To string
	Amount   uint64
	TxRef    string
}

// fakeChain is an in-memory stand-in for the Solana RPC client.
type fakeChain struct {
	mu        sync.Mutex
	balances  map[string]uint64
	transfers []transferRec
	statuses  map[string]chain.TxStatus
	failNext  bool
	seq       int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: map[string]uint64{},
		statuses: map[string]chain.TxStatus{},
	}
}

func (f *fakeChain) Balance(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeChain) Transfer(ctx context.Context, from, to string, lamports uint64) (chain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return chain.SubmitResult{}, errors.New("rpc unavailable")
	}
	f.seq++
	ref := fmt.Sprintf("tx-%d", f.seq)
	f.balances[from] -= lamports
	f.balances[to] += lamports
	f.transfers = append(f.transfers, transferRec{From: from, To: to, Amount: lamports, TxRef: ref})
	f.statuses[ref] = chain.StatusConfirmed
	return chain.SubmitResult{TxRef: ref}, nil
}

func (f *fakeChain) Status(ctx context.Context, txRef string) (chain.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[txRef]; ok {
		return st, nil
	}
	return chain.StatusUnknown, nil
}

type testEnv struct {
	Engine    engine.Engine
	Chain     *fakeChain
	Ctx       context.Context
	NowUnix   int64
	Authority solana.PrivateKey
	Buyback   solana.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		Chain:     newFakeChain(),
		Ctx:       context.Background(),
		NowUnix:   1000,
		Authority: solana.NewWallet().PrivateKey,
		Buyback:   solana.NewWallet().PrivateKey,
	}
	cfg := config.Default()
	cfg.Governance.ApprovalThresholdWeight = 100
	cfg.Chain.BuybackWallet = env.Buyback.PublicKey().String()
	env.Engine = engine.Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Config: cfg,
		Chain:  env.Chain,
		Log:    zerolog.Nop(),
		Now:    func() time.Time { return time.Unix(env.NowUnix, 0).UTC() },
	}
	return env
}

func (env *testEnv) createCommitment(t *testing.T, funded uint64, milestones ...engine.MilestoneInput) domain.Commitment {
	t.Helper()
	escrow := solana.NewWallet().PrivateKey.PublicKey().String()
	c, err := env.Engine.CreateCommitment(env.Ctx, engine.CreateCommitmentInput{
		Kind:          domain.KindCreatorReward,
		EscrowAddress: escrow,
		Authority:     env.Authority.PublicKey().String(),
		FundedAmount:  funded,
		Milestones:    milestones,
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	env.Chain.balances[escrow] = funded
	return c
}

func (env *testEnv) firstMilestone(t *testing.T, commitmentID string) domain.Milestone {
	t.Helper()
	ms, err := env.Engine.ListMilestones(env.Ctx, commitmentID)
	if err != nil || len(ms) == 0 {
		t.Fatalf("list milestones: %v (%d)", err, len(ms))
	}
	return ms[0]
}

func (env *testEnv) complete(t *testing.T, c domain.Commitment, m domain.Milestone) domain.Milestone {
	t.Helper()
	sig := signMsg(t, env.Authority, auth.CompleteMessage(c.ID, m.ID))
	res, err := env.Engine.MarkComplete(env.Ctx, c.ID, m.ID, sig)
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	return res
}

func (env *testEnv) vote(t *testing.T, m domain.Milestone, voter solana.PrivateKey, choice domain.VoteChoice, weight uint64) error {
	t.Helper()
	addr := voter.PublicKey().String()
	sig := signMsg(t, voter, auth.VoteMessage(m.ID, addr, string(choice), weight))
	_, err := env.Engine.RecordVote(env.Ctx, engine.VoteInput{
		MilestoneID: m.ID,
		Voter:       addr,
		Choice:      choice,
		Weight:      weight,
		Signature:   sig,
	})
	return err
}

func signMsg(t *testing.T, key solana.PrivateKey, msg []byte) string {
	t.Helper()
	sig, err := key.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig.String()
}

func TestVotingWindowPrecedence(t *testing.T) {
	cases := []struct {
		name      string
		m         domain.Milestone
		wantStart int64
	}{
		{"review opening wins", domain.Milestone{ReviewOpenedAtUnix: 2000, DueAtUnix: 5000, CompletedAtUnix: 1500}, 2000},
		{"due date next", domain.Milestone{DueAtUnix: 5000, CompletedAtUnix: 1500}, 5000},
		{"completion last", domain.Milestone{CompletedAtUnix: 1500}, 1500},
		{"never opened", domain.Milestone{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := engine.VotingWindow(tc.m, 86400)
			if start != tc.wantStart {
				t.Fatalf("start = %d, want %d", start, tc.wantStart)
			}
			if tc.wantStart > 0 && end != tc.wantStart+86400 {
				t.Fatalf("end = %d, want %d", end, tc.wantStart+86400)
			}
		})
	}
}

func TestVoteWindowBounds(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	voter := solana.NewWallet().PrivateKey

	// No completion yet: window never opened.
	env.NowUnix = 1500
	if err := env.vote(t, m, voter, domain.VoteApprove, 50); !errors.Is(err, engine.ErrVotingClosed) {
		t.Fatalf("pre-window vote: got %v, want ErrVotingClosed", err)
	}

	env.NowUnix = 2000
	env.complete(t, c, m)

	// Inside [2000, 2000+86400).
	env.NowUnix = 2050
	if err := env.vote(t, m, voter, domain.VoteApprove, 50); err != nil {
		t.Fatalf("in-window vote: %v", err)
	}

	// At the exclusive end.
	env.NowUnix = 2000 + 86400
	if err := env.vote(t, m, voter, domain.VoteApprove, 50); !errors.Is(err, engine.ErrVotingClosed) {
		t.Fatalf("post-window vote: got %v, want ErrVotingClosed", err)
	}
}

func TestVoteSignatureRequired(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100

	voter := solana.NewWallet().PrivateKey
	imposter := solana.NewWallet().PrivateKey
	addr := voter.PublicKey().String()
	// Signed by the wrong key.
	sig := signMsg(t, imposter, auth.VoteMessage(m.ID, addr, "approve", 50))
	_, err := env.Engine.RecordVote(env.Ctx, engine.VoteInput{
		MilestoneID: m.ID, Voter: addr, Choice: domain.VoteApprove, Weight: 50, Signature: sig,
	})
	if !errors.Is(err, engine.ErrAuthentication) {
		t.Fatalf("got %v, want ErrAuthentication", err)
	}
}

func TestRevoteReplacesEarlierVote(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100

	voter := solana.NewWallet().PrivateKey
	if err := env.vote(t, m, voter, domain.VoteApprove, 120); err != nil {
		t.Fatal(err)
	}
	if err := env.vote(t, m, voter, domain.VoteReject, 80); err != nil {
		t.Fatal(err)
	}
	tally, err := env.Engine.GetTally(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tally.ApproveWeight != 0 || tally.RejectWeight != 80 || tally.Voters != 1 {
		t.Fatalf("tally = %+v, want reject 80 from 1 voter", tally)
	}
}

func TestNormalizeApprovesAndPromotes(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	if err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteApprove, 150); err != nil {
		t.Fatal(err)
	}

	// Window still open: nothing settles.
	transitioned, changed, err := env.Engine.Normalize(env.Ctx)
	if err != nil || changed || len(transitioned) != 0 {
		t.Fatalf("mid-window normalize: changed=%v transitioned=%d err=%v", changed, len(transitioned), err)
	}

	env.NowUnix = 2000 + 86400
	transitioned, changed, err = env.Engine.Normalize(env.Ctx)
	if err != nil || !changed {
		t.Fatalf("settling normalize: changed=%v err=%v", changed, err)
	}
	if len(transitioned) != 1 || transitioned[0].ID != m.ID || transitioned[0].Status != domain.MilestoneApproved {
		t.Fatalf("transitioned = %+v, want one approved %s", transitioned, m.ID)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneApproved {
		t.Fatalf("status = %s, want approved", got.Status)
	}
	if got.ClaimableAtUnix != env.NowUnix+86400 {
		t.Fatalf("claimable at %d, want %d", got.ClaimableAtUnix, env.NowUnix+86400)
	}

	// Idempotent before the claimable delay elapses.
	_, changed, err = env.Engine.Normalize(env.Ctx)
	if err != nil || changed {
		t.Fatalf("repeat normalize: changed=%v err=%v", changed, err)
	}

	env.NowUnix = got.ClaimableAtUnix
	transitioned, changed, err = env.Engine.Normalize(env.Ctx)
	if err != nil || !changed {
		t.Fatalf("promoting normalize: changed=%v err=%v", changed, err)
	}
	if len(transitioned) != 1 || transitioned[0].Status != domain.MilestoneClaimable {
		t.Fatalf("transitioned = %+v, want one claimable milestone", transitioned)
	}
	got, _ = env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneClaimable {
		t.Fatalf("status = %s, want claimable", got.Status)
	}
}

func TestNormalizeFailsBelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	// Below the 100-weight threshold.
	if err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteApprove, 60); err != nil {
		t.Fatal(err)
	}

	env.NowUnix = 2000 + 86400
	if _, _, err := env.Engine.Normalize(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestNormalizeApprovesAtThresholdDespiteRejectMajority(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	if err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteApprove, 150); err != nil {
		t.Fatal(err)
	}
	if err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteReject, 200); err != nil {
		t.Fatal(err)
	}

	// Approve weight clears the threshold; reject weight does not veto.
	env.NowUnix = 2000 + 86400
	if _, _, err := env.Engine.Normalize(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneApproved {
		t.Fatalf("status = %s, want approved", got.Status)
	}
}

func TestNormalizeSkipsNeverCompletedMilestone(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{
		Title: "ship v1", UnlockAmount: 100, DueAtUnix: 2000,
	})
	m := env.firstMilestone(t, c.ID)

	// Due date long past, but the work was never marked complete: the sweep
	// must leave it alone.
	env.NowUnix = 2000 + 2*86400
	transitioned, changed, err := env.Engine.Normalize(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if changed || len(transitioned) != 0 {
		t.Fatalf("normalize touched a never-completed milestone: %+v", transitioned)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneLocked {
		t.Fatalf("status = %s, want locked", got.Status)
	}
}

func TestVoteRejectedBeforeCompletion(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{
		Title: "ship v1", UnlockAmount: 100, DueAtUnix: 2000,
	})
	m := env.firstMilestone(t, c.ID)

	// Past the due date with no completion stamp: no window to vote in.
	env.NowUnix = 2050
	err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteApprove, 50)
	if !errors.Is(err, engine.ErrVotingClosed) {
		t.Fatalf("got %v, want ErrVotingClosed", err)
	}
}

func TestNormalizeConcurrentSweepsSettleOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	env.NowUnix = 2100
	if err := env.vote(t, m, solana.NewWallet().PrivateKey, domain.VoteApprove, 150); err != nil {
		t.Fatal(err)
	}
	env.NowUnix = 2000 + 86400

	results := make([][]domain.Milestone, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = env.Engine.Normalize(env.Ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	// The CAS guard lets exactly one sweep claim the transition.
	if total := len(results[0]) + len(results[1]); total != 1 {
		t.Fatalf("transitions across sweeps = %d, want 1", total)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.Status != domain.MilestoneApproved {
		t.Fatalf("status = %s, want approved", got.Status)
	}
	evs, err := env.Engine.ListEvents(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	var approvals int
	for _, ev := range evs {
		if ev.Type == "milestone.approved" {
			approvals++
		}
	}
	if approvals != 1 {
		t.Fatalf("approval events = %d, want 1", approvals)
	}
}

func TestMarkCompleteRejectsRepeat(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	first := env.complete(t, c, m)

	env.NowUnix = 3000
	sig := signMsg(t, env.Authority, auth.CompleteMessage(c.ID, m.ID))
	_, err := env.Engine.MarkComplete(env.Ctx, c.ID, m.ID, sig)
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("repeat completion: got %v, want ErrInvalidState", err)
	}
	got, _ := env.Engine.GetMilestone(env.Ctx, m.ID)
	if got.CompletedAtUnix != first.CompletedAtUnix {
		t.Fatalf("completion restamped: %d then %d", first.CompletedAtUnix, got.CompletedAtUnix)
	}
}

func TestMarkCompleteRejectsTerminalMilestone(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "ship v1", UnlockAmount: 100})
	m := env.firstMilestone(t, c.ID)
	env.NowUnix = 2000
	env.complete(t, c, m)
	// No votes: window expiry fails the milestone.
	env.NowUnix = 2000 + 86400
	if _, _, err := env.Engine.Normalize(env.Ctx); err != nil {
		t.Fatal(err)
	}

	sig := signMsg(t, env.Authority, auth.CompleteMessage(c.ID, m.ID))
	_, err := env.Engine.MarkComplete(env.Ctx, c.ID, m.ID, sig)
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestAppendMilestoneBudget(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCommitment(t, 1000, engine.MilestoneInput{Title: "first", UnlockAmount: 900})

	over := engine.MilestoneInput{Title: "too big", UnlockAmount: 200}
	sig := signMsg(t, env.Authority, auth.AppendMessage(c.ID, over.Title, over.UnlockAmount, over.UnlockBps))
	if _, err := env.Engine.AppendMilestone(env.Ctx, c.ID, over, sig); !errors.Is(err, engine.ErrUnderfunded) {
		t.Fatalf("got %v, want ErrUnderfunded", err)
	}

	fits := engine.MilestoneInput{Title: "fits", UnlockAmount: 100}
	sig = signMsg(t, env.Authority, auth.AppendMessage(c.ID, fits.Title, fits.UnlockAmount, fits.UnlockBps))
	m, err := env.Engine.AppendMilestone(env.Ctx, c.ID, fits, sig)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m.Seq != 2 {
		t.Fatalf("seq = %d, want 2", m.Seq)
	}
}

func TestCreateCommitmentValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateCommitment(env.Ctx, engine.CreateCommitmentInput{
		Kind:          domain.KindCreatorReward,
		EscrowAddress: "escrow",
		Authority:     "authority",
		FundedAmount:  1000,
		Milestones: []engine.MilestoneInput{
			{Title: "both set", UnlockAmount: 100, UnlockBps: 500},
		},
	})
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}

	_, err = env.Engine.CreateCommitment(env.Ctx, engine.CreateCommitmentInput{
		Kind:          domain.KindCreatorReward,
		EscrowAddress: "escrow",
		Authority:     "authority",
		FundedAmount:  1000,
		Milestones: []engine.MilestoneInput{
			{Title: "a", UnlockBps: 6000},
			{Title: "b", UnlockBps: 6000},
		},
	})
	if !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("bps overrun: got %v, want ErrInvalidState", err)
	}
}

func TestBpsUnlockDerivation(t *testing.T) {
	m := domain.Milestone{UnlockBps: 3333}
	if got := m.Unlock(1000); got != 333 {
		t.Fatalf("unlock = %d, want 333 (truncated)", got)
	}
	m = domain.Milestone{UnlockAmount: 250, UnlockBps: 0}
	if got := m.Unlock(1000); got != 250 {
		t.Fatalf("unlock = %d, want explicit 250", got)
	}
}
