package domain

// CommitmentKind distinguishes personal time-locks from creator reward escrows.
type CommitmentKind string

const (
	KindPersonal      CommitmentKind = "personal"
	KindCreatorReward CommitmentKind = "creator_reward"
)

// FeeMode records who pays settlement fees for a commitment.
type FeeMode string

const (
	FeeManaged  FeeMode = "managed"
	FeeAssisted FeeMode = "assisted"
)

// CommitmentStatus is the top-level lifecycle of a commitment.
type CommitmentStatus string

const (
	CommitmentActive   CommitmentStatus = "active"
	CommitmentResolved CommitmentStatus = "resolved"
)

// MilestoneStatus values are ordered; transitions only ever move forward.
type MilestoneStatus string

const (
	MilestoneLocked    MilestoneStatus = "locked"
	MilestoneApproved  MilestoneStatus = "approved"
	MilestoneFailed    MilestoneStatus = "failed"
	MilestoneClaimable MilestoneStatus = "claimable"
	MilestoneReleased  MilestoneStatus = "released"
)

// Terminal reports whether no further status transition is possible.
func (s MilestoneStatus) Terminal() bool {
	return s == MilestoneFailed || s == MilestoneReleased
}

type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
)

// Commitment is the top-level escrowed accountability record. Amounts are
// lamports. Commitments are permanent receipts and are never deleted.
type Commitment struct {
	ID            string           `json:"id"`
	Kind          CommitmentKind   `json:"kind" enum:"personal,creator_reward"`
	EscrowAddress string           `json:"escrow_address"`
	Authority     string           `json:"authority"`
	FailureDest   string           `json:"failure_dest,omitempty"`
	Status        CommitmentStatus `json:"status" enum:"active,resolved"`
	FundedAmount  uint64           `json:"funded_amount"`
	UnlockedTotal uint64           `json:"unlocked_total"`
	VoteTokenMint string           `json:"vote_token_mint,omitempty"`
	FeeMode       FeeMode          `json:"fee_mode" enum:"managed,assisted"`
	CreatedAtUnix int64            `json:"created_at_unix"`
	DeadlineUnix  int64            `json:"deadline_unix,omitempty"`
}

// Milestone is one unlockable tranche of a reward commitment. UnlockAmount is
// explicit lamports; when zero, UnlockBps derives the amount from the funded
// total. Zero means "unset" for every *AtUnix field.
type Milestone struct {
	ID                    string          `json:"id"`
	CommitmentID          string          `json:"commitment_id"`
	Seq                   int             `json:"seq"`
	Title                 string          `json:"title"`
	UnlockAmount          uint64          `json:"unlock_amount"`
	UnlockBps             int             `json:"unlock_bps,omitempty"`
	Status                MilestoneStatus `json:"status" enum:"locked,approved,failed,claimable,released"`
	CompletedAtUnix       int64           `json:"completed_at_unix,omitempty"`
	ReviewOpenedAtUnix    int64           `json:"review_opened_at_unix,omitempty"`
	DueAtUnix             int64           `json:"due_at_unix,omitempty"`
	ApprovedAtUnix        int64           `json:"approved_at_unix,omitempty"`
	FailedAtUnix          int64           `json:"failed_at_unix,omitempty"`
	ClaimableAtUnix       int64           `json:"claimable_at_unix,omitempty"`
	BecameClaimableAtUnix int64           `json:"became_claimable_at_unix,omitempty"`
	ReleasedAtUnix        int64           `json:"released_at_unix,omitempty"`
	ReleasedTxRef         string          `json:"released_tx_ref,omitempty"`
}

// Unlock returns the lamports this milestone unlocks given the commitment's
// funded total. Basis-point shares truncate toward zero.
func (m Milestone) Unlock(funded uint64) uint64 {
	if m.UnlockAmount > 0 {
		return m.UnlockAmount
	}
	return funded * uint64(m.UnlockBps) / 10000
}

// Vote is one holder's weighted position on one milestone. Weight is the
// caller-supplied USD-equivalent holding value; the engine never computes it.
type Vote struct {
	MilestoneID   string     `json:"milestone_id"`
	Voter         string     `json:"voter"`
	Choice        VoteChoice `json:"choice" enum:"approve,reject"`
	Weight        uint64     `json:"weight"`
	CreatedAtUnix int64      `json:"created_at_unix"`
	Signature     string     `json:"signature"`
}

// Tally is derived from the vote ledger on demand, never stored.
type Tally struct {
	MilestoneID   string `json:"milestone_id"`
	ApproveWeight uint64 `json:"approve_weight"`
	RejectWeight  uint64 `json:"reject_weight"`
	Voters        int    `json:"voters"`
}

// FailureDistribution splits a failed milestone's forfeited unlock between a
// buyback instruction and a voter pot. Created at most once per milestone.
type FailureDistribution struct {
	ID             string `json:"id"`
	MilestoneID    string `json:"milestone_id"`
	Forfeited      uint64 `json:"forfeited"`
	BuybackAmount  uint64 `json:"buyback_amount"`
	VoterPot       uint64 `json:"voter_pot"`
	EligibleWeight uint64 `json:"eligible_weight"`
	BuybackTxRef   string `json:"buyback_tx_ref,omitempty"`
	CreatedAtUnix  int64  `json:"created_at_unix"`
}

// FailureClaim is one voter's entitlement from a failure distribution.
type FailureClaim struct {
	DistributionID string `json:"distribution_id"`
	Voter          string `json:"voter"`
	Amount         uint64 `json:"amount"`
	Claimed        bool   `json:"claimed"`
	ClaimTxRef     string `json:"claim_tx_ref,omitempty"`
	CreatedAtUnix  int64  `json:"created_at_unix"`
	ClaimedAtUnix  int64  `json:"claimed_at_unix,omitempty"`
}

// VoteRewardEntry is one wallet's accrual from a periodic vote-reward
// distribution. Entries are flagged claimed exactly once, in bulk.
type VoteRewardEntry struct {
	ID             string `json:"id"`
	CommitmentID   string `json:"commitment_id"`
	DistributionID string `json:"distribution_id"`
	Wallet         string `json:"wallet"`
	Amount         uint64 `json:"amount"`
	Claimed        bool   `json:"claimed"`
	ClaimTxRef     string `json:"claim_tx_ref,omitempty"`
	CreatedAtUnix  int64  `json:"created_at_unix"`
}

// SubmissionStatus tracks an external transfer through the reconciliation
// ledger.
type SubmissionStatus string

const (
	SubmissionPending      SubmissionStatus = "pending"
	SubmissionConfirmed    SubmissionStatus = "confirmed"
	SubmissionFailed       SubmissionStatus = "failed"
	SubmissionInconsistent SubmissionStatus = "inconsistent"
)

// Submission entity kinds.
const (
	EntityRelease      = "release"
	EntityBuyback      = "buyback"
	EntityFailureClaim = "failure_claim"
	EntityVoteRewards  = "vote_rewards"
	EntityResolve      = "resolve"
)

// PayoutSubmission records every external transfer attempt so that a
// confirmed-but-unrecorded transfer is detectable before any retry.
type PayoutSubmission struct {
	ID            int64            `json:"id"`
	EntityKind    string           `json:"entity_kind"`
	EntityID      string           `json:"entity_id"`
	Destination   string           `json:"destination"`
	Amount        uint64           `json:"amount"`
	TxRef         string           `json:"tx_ref,omitempty"`
	Status        SubmissionStatus `json:"status" enum:"pending,confirmed,failed,inconsistent"`
	Reason        string           `json:"reason,omitempty"`
	CreatedAtUnix int64            `json:"created_at_unix"`
	UpdatedAtUnix int64            `json:"updated_at_unix"`
}

// Event is one append-only audit log row.
type Event struct {
	ID           int64  `json:"id"`
	TSUnix       int64  `json:"ts_unix"`
	Type         string `json:"type"`
	CommitmentID string `json:"commitment_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	Actor        string `json:"actor,omitempty"`
	Payload      string `json:"payload_json"`
}
