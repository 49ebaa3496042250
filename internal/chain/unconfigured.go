package chain

import (
	"context"

	"github.com/pkg/errors"
)

// Unconfigured stands in when no operator key is present. Reads report an
// empty escrow and writes refuse outright, so a daemon without signing
// material can still serve the read API and the vote path.
type Unconfigured struct{}

var errNoOperator = errors.New("no operator key configured")

func (Unconfigured) Balance(ctx context.Context, address string) (uint64, error) {
	return 0, nil
}

func (Unconfigured) Transfer(ctx context.Context, from, to string, lamports uint64) (SubmitResult, error) {
	return SubmitResult{}, errNoOperator
}

func (Unconfigured) Status(ctx context.Context, txRef string) (TxStatus, error) {
	return StatusUnknown, errNoOperator
}

var _ Client = Unconfigured{}
