// Package receipt issues signed settlement receipts for ended auctions.
package receipt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cloudx-io/pullauction/core"
)

var (
	ErrNotEnded       = errors.New("auction has not ended")
	ErrInvalidReceipt = errors.New("invalid receipt")
)

// Receipt records how an auction settled. The ledger digest covers every
// balance still owed at issue time, salted with Nonce.
type Receipt struct {
	Beneficiary   core.ParticipantID `cbor:"beneficiary" json:"beneficiary"`
	Winner        core.ParticipantID `cbor:"winner" json:"winner"`
	WinningBid    core.Amount        `cbor:"winning_bid" json:"winning_bid"`
	StartingPrice core.Amount        `cbor:"starting_price" json:"starting_price"`
	CreatedTime   core.Timestamp     `cbor:"created_time" json:"created_time"`
	EndTime       core.Timestamp     `cbor:"end_time" json:"end_time"`
	IssuedAt      core.Timestamp     `cbor:"issued_at" json:"issued_at"`
	Nonce         string             `cbor:"nonce" json:"nonce"`
	LedgerDigest  string             `cbor:"ledger_digest" json:"ledger_digest"`
	OutcomeDigest string             `cbor:"outcome_digest" json:"outcome_digest"`
}

// Build captures the settled outcome of a. The auction must have ended.
func Build(a *core.Auction, issuedAt core.Timestamp) (Receipt, error) {
	if !a.IsEnded() {
		return Receipt{}, ErrNotEnded
	}

	nonce, err := generateNonce()
	if err != nil {
		return Receipt{}, fmt.Errorf("generate ledger nonce: %w", err)
	}

	ledgerDigest := core.ComputeLedgerDigest(a.Ledger(), nonce)
	return Receipt{
		Beneficiary:   a.Beneficiary(),
		Winner:        a.HighestBidder(),
		WinningBid:    a.HighestBid(),
		StartingPrice: a.StartingPrice(),
		CreatedTime:   a.CreatedTime(),
		EndTime:       a.EndTime(),
		IssuedAt:      issuedAt,
		Nonce:         nonce,
		LedgerDigest:  ledgerDigest,
		OutcomeDigest: core.ComputeOutcomeDigest(a, ledgerDigest),
	}, nil
}

// Matches checks r against an auction whose ledger has not moved since the
// receipt was issued.
func (r Receipt) Matches(a *core.Auction) error {
	if !a.IsEnded() {
		return ErrNotEnded
	}
	if r.Beneficiary != a.Beneficiary() || r.Winner != a.HighestBidder() || r.WinningBid != a.HighestBid() {
		return fmt.Errorf("%w: outcome differs from auction", ErrInvalidReceipt)
	}

	ledgerDigest := core.ComputeLedgerDigest(a.Ledger(), r.Nonce)
	if ledgerDigest != r.LedgerDigest {
		return fmt.Errorf("%w: ledger digest mismatch", ErrInvalidReceipt)
	}
	if core.ComputeOutcomeDigest(a, ledgerDigest) != r.OutcomeDigest {
		return fmt.Errorf("%w: outcome digest mismatch", ErrInvalidReceipt)
	}
	return nil
}

func generateNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
