package core

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ComputeLedgerDigest computes a digest over the ledger balances.
// Used by settlement receipts so a verifier can compare a reported ledger
// against the one the receipt was issued for.
//
// Formula: SHA256(nonce + sorted_participant_balance_entries)
// where each entry is "|" + len(participant) + ":" + participant + ":" + balance,
// e.g. "|5:alice:6|3:bob:0" (sorted by participant). The length prefix keeps
// participant IDs containing separators from aliasing other ledgers.
func ComputeLedgerDigest(ledger *Ledger, nonce string) string {
	var b strings.Builder
	b.WriteString(nonce)
	for _, p := range ledger.Participants() {
		fmt.Fprintf(&b, "|%d:%s:%d", len(p), p, ledger.BalanceOf(p))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}

// ComputeOutcomeDigest computes a digest over the settled outcome of an auction.
//
// Formula: SHA256(beneficiary + "|" + highest_bidder + "|" + highest_bid + "|" + end_time + "|" + ledger_digest)
func ComputeOutcomeDigest(a *Auction, ledgerDigest string) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%s", a.beneficiary, a.highestBidder, a.highestBid, a.endTime, ledgerDigest)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
