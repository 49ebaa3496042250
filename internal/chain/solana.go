package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// RPC is the live Client backed by a Solana JSON-RPC endpoint. Transfers are
// system-program moves signed by the custodial operator key that owns the
// escrow accounts.
type RPC struct {
	client     *rpc.Client
	operator   solana.PrivateKey
	commitment rpc.CommitmentType
	logger     zerolog.Logger
}

func NewRPC(endpoint string, operator solana.PrivateKey, commitment string, logger zerolog.Logger) *RPC {
	c := rpc.CommitmentConfirmed
	switch commitment {
	case "processed":
		c = rpc.CommitmentProcessed
	case "finalized":
		c = rpc.CommitmentFinalized
	}
	return &RPC{
		client:     rpc.New(endpoint),
		operator:   operator,
		commitment: c,
		logger:     logger.With().Str("component", "chain").Logger(),
	}
}

func (r *RPC) Balance(ctx context.Context, address string) (uint64, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %q", address)
	}
	resp, err := r.client.GetBalance(ctx, pub, r.commitment)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	return resp.Value, nil
}

func (r *RPC) Transfer(ctx context.Context, from, to string, lamports uint64) (SubmitResult, error) {
	fromPub, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return SubmitResult{}, errors.Wrapf(err, "invalid source %q", from)
	}
	toPub, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return SubmitResult{}, errors.Wrapf(err, "invalid destination %q", to)
	}

	recent, err := r.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "get latest blockhash")
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, fromPub, toPub).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(r.operator.PublicKey()),
	)
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "build transaction")
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(r.operator.PublicKey()) || key.Equals(fromPub) {
			return &r.operator
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "sign transaction")
	}

	sig, err := r.client.SendTransaction(ctx, tx)
	if err != nil {
		return SubmitResult{}, errors.Wrap(err, "send transaction")
	}
	r.logger.Info().Str("tx", sig.String()).Str("to", to).Uint64("lamports", lamports).Msg("transfer submitted")
	return SubmitResult{TxRef: sig.String()}, nil
}

func (r *RPC) Status(ctx context.Context, txRef string) (TxStatus, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return StatusUnknown, errors.Wrapf(err, "invalid signature %q", txRef)
	}
	// searchTransactionHistory so signatures older than the recent-status
	// cache still resolve.
	resp, err := r.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return StatusUnknown, errors.Wrap(err, "get signature statuses")
	}
	if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
		return StatusUnknown, nil
	}
	st := resp.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return StatusConfirmed, nil
	case rpc.ConfirmationStatusConfirmed:
		if r.commitment == rpc.CommitmentFinalized {
			return StatusPending, nil
		}
		return StatusConfirmed, nil
	case rpc.ConfirmationStatusProcessed:
		if r.commitment == rpc.CommitmentProcessed {
			return StatusConfirmed, nil
		}
		return StatusPending, nil
	default:
		return StatusPending, nil
	}
}

var _ Client = (*RPC)(nil)
