package server

import "github.com/JermWang/hodler-sub004/internal/domain"

type CreateMilestoneRequest struct {
	Title        string `json:"title"`
	UnlockAmount uint64 `json:"unlock_amount,omitempty"`
	UnlockBps    int    `json:"unlock_bps,omitempty"`
	DueAtUnix    int64  `json:"due_at_unix,omitempty"`
}

type CreateCommitmentRequest struct {
	Kind          string                   `json:"kind" enum:"personal,creator_reward"`
	EscrowAddress string                   `json:"escrow_address"`
	Authority     string                   `json:"authority"`
	FailureDest   string                   `json:"failure_dest,omitempty"`
	FundedAmount  uint64                   `json:"funded_amount"`
	VoteTokenMint string                   `json:"vote_token_mint,omitempty"`
	FeeMode       string                   `json:"fee_mode,omitempty" enum:"managed,assisted,"`
	DeadlineUnix  int64                    `json:"deadline_unix,omitempty"`
	Milestones    []CreateMilestoneRequest `json:"milestones,omitempty"`
}

type AppendMilestoneRequest struct {
	CreateMilestoneRequest
	Signature string `json:"signature"`
}

type CompleteMilestoneRequest struct {
	Signature string `json:"signature"`
}

type VoteRequest struct {
	Voter     string `json:"voter"`
	Choice    string `json:"choice" enum:"approve,reject"`
	Weight    uint64 `json:"weight"`
	Signature string `json:"signature"`
}

type ClaimRequest struct {
	Wallet       string `json:"wallet"`
	SignedAtUnix int64  `json:"signed_at_unix"`
	Signature    string `json:"signature"`
}

type ResolveSubmissionRequest struct {
	Confirmed bool   `json:"confirmed"`
	TxRef     string `json:"tx_ref,omitempty"`
}

type RewardsClaimResponse struct {
	Wallet string `json:"wallet"`
	Amount uint64 `json:"amount"`
	TxRef  string `json:"tx_ref"`
}

type TallyResponse struct {
	Tally       domain.Tally `json:"tally"`
	WindowStart int64        `json:"window_start_unix,omitempty"`
	WindowEnd   int64        `json:"window_end_unix,omitempty"`
}

type NormalizeResponse struct {
	Changed    bool               `json:"changed"`
	Milestones []domain.Milestone `json:"milestones"`
}

type ReconcileResponse struct {
	Resolved int `json:"resolved"`
}
