// Package auth verifies wallet-signed authorizations. Every mutating
// operation carries an ed25519 signature over a canonical pipe-delimited
// message, so the engine never trusts a bare wallet address.
package auth

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Canonical message builders. Field order is part of the wire contract;
// changing it invalidates every outstanding signature.

func CompleteMessage(commitmentID, milestoneID string) []byte {
	return []byte(fmt.Sprintf("hodler|complete|%s|%s", commitmentID, milestoneID))
}

func VoteMessage(milestoneID, voter, choice string, weight uint64) []byte {
	return []byte(fmt.Sprintf("hodler|vote|%s|%s|%s|%d", milestoneID, voter, choice, weight))
}

func AppendMessage(commitmentID, title string, amount uint64, bps int) []byte {
	return []byte(fmt.Sprintf("hodler|append|%s|%s|%d|%d", commitmentID, title, amount, bps))
}

func ClaimMessage(entityID, wallet string, tsUnix int64) []byte {
	return []byte(fmt.Sprintf("hodler|claim|%s|%s|%d", entityID, wallet, tsUnix))
}

// Verify checks sigB58 over msg against the base58 wallet address.
func Verify(wallet, sigB58 string, msg []byte) error {
	pub, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return errors.Wrapf(err, "invalid wallet address %q", wallet)
	}
	sig, err := solana.SignatureFromBase58(sigB58)
	if err != nil {
		return errors.Wrap(err, "invalid signature encoding")
	}
	if !pub.Verify(msg, sig) {
		return errors.Errorf("signature does not match wallet %s", wallet)
	}
	return nil
}

// VerifyFresh additionally bounds the signed timestamp to now±window, so a
// captured claim authorization cannot be replayed later.
func VerifyFresh(wallet, sigB58 string, msg []byte, tsUnix, nowUnix, windowSecs int64) error {
	if tsUnix <= 0 {
		return errors.New("missing signed timestamp")
	}
	delta := nowUnix - tsUnix
	if delta < 0 {
		delta = -delta
	}
	if delta > windowSecs {
		return errors.Errorf("signed timestamp %d outside freshness window of %ds", tsUnix, windowSecs)
	}
	return Verify(wallet, sigB58, msg)
}
