// Package chain isolates every talk-to-Solana concern behind small
// interfaces so the engine and its tests never touch an RPC endpoint.
package chain

import "context"

// TxStatus is the engine's view of an on-chain transaction.
type TxStatus string

const (
	// StatusUnknown: the cluster has no record of the signature.
	StatusUnknown TxStatus = "unknown"
	// StatusPending: seen but below the required commitment level.
	StatusPending TxStatus = "pending"
	// StatusConfirmed: at or above the required commitment level.
	StatusConfirmed TxStatus = "confirmed"
	// StatusFailed: included with a transaction error.
	StatusFailed TxStatus = "failed"
)

// SubmitResult carries the signature of a submitted transfer.
type SubmitResult struct {
	TxRef string
}

// Reader reads escrow balances.
type Reader interface {
	Balance(ctx context.Context, address string) (uint64, error)
}

// Submitter moves lamports out of an escrow the operator key controls.
type Submitter interface {
	Transfer(ctx context.Context, from, to string, lamports uint64) (SubmitResult, error)
}

// StatusChecker resolves a signature to its current confirmation state.
type StatusChecker interface {
	Status(ctx context.Context, txRef string) (TxStatus, error)
}

// Client is the full surface the daemon wires in.
type Client interface {
	Reader
	Submitter
	StatusChecker
}
