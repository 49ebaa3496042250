package reconcile_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JermWang/hodler-sub004/internal/chain"
	"github.com/JermWang/hodler-sub004/internal/db"
	"github.com/JermWang/hodler-sub004/internal/domain"
	"github.com/JermWang/hodler-sub004/internal/events"
	"github.com/JermWang/hodler-sub004/internal/migrate"
	"github.com/JermWang/hodler-sub004/internal/reconcile"
	"github.com/JermWang/hodler-sub004/internal/repo"
)

// fakeStatuses answers signature status lookups from a fixed map.
type fakeStatuses map[string]chain.TxStatus

func (f fakeStatuses) Status(ctx context.Context, txRef string) (chain.TxStatus, error) {
	if st, ok := f[txRef]; ok {
		return st, nil
	}
	return chain.StatusUnknown, nil
}

type testEnv struct {
	DB      *sql.DB
	Repo    repo.Repo
	Rec     reconcile.Reconciler
	Chain   fakeStatuses
	Ctx     context.Context
	NowUnix int64
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
		DB:      conn,
		Repo:    repo.Repo{DB: conn},
		Chain:   fakeStatuses{},
		Ctx:     context.Background(),
		NowUnix: 10000,
	}
	env.Rec = reconcile.Reconciler{
		DB:           conn,
		Repo:         env.Repo,
		Events:       events.Writer{DB: conn},
		Chain:        env.Chain,
		Log:          zerolog.Nop(),
		Now:          func() time.Time { return time.Unix(env.NowUnix, 0).UTC() },
		PendingGrace: 10 * time.Minute,
	}
	return env
}

func (env *testEnv) insertSubmission(t *testing.T, s domain.PayoutSubmission) int64 {
	t.Helper()
	tx, err := env.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	id, err := env.Repo.InsertSubmissionTx(env.Ctx, tx, s)
	if err != nil {
		t.Fatalf("insert submission: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return id
}

func (env *testEnv) submissionStatus(t *testing.T, id int64) domain.SubmissionStatus {
	t.Helper()
	s, err := env.Repo.GetSubmission(env.Ctx, id)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	return s.Status
}

func pendingSubmission(kind, entityID, txRef string, createdAt int64) domain.PayoutSubmission {
	return domain.PayoutSubmission{
		EntityKind:    kind,
		EntityID:      entityID,
		Destination:   "dest",
		Amount:        100,
		TxRef:         txRef,
		Status:        domain.SubmissionPending,
		CreatedAtUnix: createdAt,
		UpdatedAtUnix: createdAt,
	}
}

func TestSweepLeavesFreshPendingAlone(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-1", "", env.NowUnix-30))

	changed, err := env.Rec.Sweep(env.Ctx)
	if err != nil || changed != 0 {
		t.Fatalf("sweep: changed=%d err=%v", changed, err)
	}
	if got := env.submissionStatus(t, id); got != domain.SubmissionPending {
		t.Fatalf("status = %s, want pending", got)
	}
}

func TestSweepFreezesAgedWithoutSignature(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-1", "", env.NowUnix-700))

	changed, err := env.Rec.Sweep(env.Ctx)
	if err != nil || changed != 1 {
		t.Fatalf("sweep: changed=%d err=%v", changed, err)
	}
	if got := env.submissionStatus(t, id); got != domain.SubmissionInconsistent {
		t.Fatalf("status = %s, want inconsistent", got)
	}
}

func TestSweepMarksChainFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Chain["sig-1"] = chain.StatusFailed
	id := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-1", "sig-1", env.NowUnix-30))

	if _, err := env.Rec.Sweep(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if got := env.submissionStatus(t, id); got != domain.SubmissionFailed {
		t.Fatalf("status = %s, want failed (retryable)", got)
	}
}

func TestSweepFreezesConfirmedButUnrecorded(t *testing.T) {
	env := newTestEnv(t)
	env.Chain["sig-1"] = chain.StatusConfirmed
	id := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-1", "sig-1", env.NowUnix-30))

	if _, err := env.Rec.Sweep(env.Ctx); err != nil {
		t.Fatal(err)
	}
	// Lamports moved but the entity never advanced: retrying would pay twice.
	if got := env.submissionStatus(t, id); got != domain.SubmissionInconsistent {
		t.Fatalf("status = %s, want inconsistent", got)
	}
}

func TestSweepExpiresUnseenAfterGrace(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-1", "sig-unseen", env.NowUnix-700))

	if _, err := env.Rec.Sweep(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if got := env.submissionStatus(t, id); got != domain.SubmissionFailed {
		t.Fatalf("status = %s, want failed", got)
	}

	// Unseen but still inside the grace period stays pending.
	young := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-2", "sig-unseen-2", env.NowUnix-30))
	if _, err := env.Rec.Sweep(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if got := env.submissionStatus(t, young); got != domain.SubmissionPending {
		t.Fatalf("status = %s, want pending", got)
	}
}

func TestResolveInconsistentConfirmedAdvancesRelease(t *testing.T) {
	env := newTestEnv(t)

	// A claimable milestone whose release transfer landed but was never
	// recorded.
	tx, err := env.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := domain.Commitment{
		ID: "c-1", Kind: domain.KindCreatorReward, EscrowAddress: "escrow",
		Authority: "authority", Status: domain.CommitmentActive,
		FeeMode: domain.FeeManaged, FundedAmount: 1000, CreatedAtUnix: 1,
	}
	if err := env.Repo.InsertCommitmentTx(env.Ctx, tx, c); err != nil {
		t.Fatal(err)
	}
	m := domain.Milestone{
		ID: "m-1", CommitmentID: "c-1", Seq: 1, Title: "ship v1",
		UnlockAmount: 100, Status: domain.MilestoneClaimable,
	}
	if err := env.Repo.InsertMilestoneTx(env.Ctx, tx, m); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	sub := pendingSubmission(domain.EntityRelease, "m-1", "sig-1", env.NowUnix-30)
	sub.Status = domain.SubmissionInconsistent
	id := env.insertSubmission(t, sub)

	if err := env.Rec.ResolveInconsistent(env.Ctx, id, true, "sig-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := env.submissionStatus(t, id); got != domain.SubmissionConfirmed {
		t.Fatalf("status = %s, want confirmed", got)
	}
	mAfter, err := env.Repo.GetMilestone(env.Ctx, "m-1")
	if err != nil {
		t.Fatal(err)
	}
	if mAfter.Status != domain.MilestoneReleased || mAfter.ReleasedTxRef != "sig-1" {
		t.Fatalf("milestone = %+v, want released with sig-1", mAfter)
	}
	cAfter, err := env.Repo.GetCommitment(env.Ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if cAfter.UnlockedTotal != 100 {
		t.Fatalf("unlocked total = %d, want 100", cAfter.UnlockedTotal)
	}
}

func TestResolveInconsistentFailedUnfreezes(t *testing.T) {
	env := newTestEnv(t)
	sub := pendingSubmission(domain.EntityRelease, "m-1", "sig-1", env.NowUnix-30)
	sub.Status = domain.SubmissionInconsistent
	id := env.insertSubmission(t, sub)

	if err := env.Rec.ResolveInconsistent(env.Ctx, id, false, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := env.submissionStatus(t, id); got != domain.SubmissionFailed {
		t.Fatalf("status = %s, want failed", got)
	}
}

func TestResolveRequiresInconsistent(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertSubmission(t, pendingSubmission(domain.EntityRelease, "m-1", "sig-1", env.NowUnix-30))
	if err := env.Rec.ResolveInconsistent(env.Ctx, id, true, ""); err == nil {
		t.Fatal("expected error resolving a pending submission")
	}
}
