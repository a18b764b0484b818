package receipt

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/auctionapi"
	"github.com/cloudx-io/pullauction/core"
)

func TestBuild_CapturesOutcome(t *testing.T) {
	a := settledAuction(t)

	r, err := Build(a, 5000)
	assert.NoError(t, err)

	check.Equal(t, core.ParticipantID("ben"), r.Beneficiary)
	check.Equal(t, core.ParticipantID("bob"), r.Winner)
	check.Equal(t, core.Amount(7), r.WinningBid)
	check.Equal(t, core.Timestamp(61000), r.EndTime)
	check.Equal(t, core.Timestamp(5000), r.IssuedAt)
	check.Equal(t, 64, len(r.Nonce))
	check.Equal(t, core.ComputeLedgerDigest(a.Ledger(), r.Nonce), r.LedgerDigest)
	check.NoError(t, r.Matches(a))
}

func TestBuild_RequiresEndedAuction(t *testing.T) {
	a, err := core.New(core.Call{Caller: "ben", Now: 1000}, 5, time.Minute, nil)
	assert.NoError(t, err)

	_, err = Build(a, 1000)
	check.True(t, errors.Is(err, ErrNotEnded))
}

func TestBuild_FreshNoncePerReceipt(t *testing.T) {
	a := settledAuction(t)
	r1, err := Build(a, 5000)
	assert.NoError(t, err)
	r2, err := Build(a, 5000)
	assert.NoError(t, err)

	check.NotEqual(t, r1.Nonce, r2.Nonce)
	check.NotEqual(t, r1.LedgerDigest, r2.LedgerDigest)
}

func TestMatches_DetectsLedgerChange(t *testing.T) {
	a := settledAuction(t)
	r, err := Build(a, 5000)
	assert.NoError(t, err)

	ok, err := a.Withdraw(core.Call{Caller: "alice", Now: 6000}, payAll{})
	assert.NoError(t, err)
	assert.True(t, ok)

	check.True(t, errors.Is(r.Matches(a), ErrInvalidReceipt))
}

func TestMatches_DetectsTamperedOutcome(t *testing.T) {
	a := settledAuction(t)
	r, err := Build(a, 5000)
	assert.NoError(t, err)

	r.WinningBid = 70
	check.True(t, errors.Is(r.Matches(a), ErrInvalidReceipt))
}

func TestSignVerify_RoundTrip(t *testing.T) {
	signer, err := NewSigner()
	assert.NoError(t, err)

	r, err := Build(settledAuction(t), 5000)
	assert.NoError(t, err)

	signed, err := signer.Sign(r)
	assert.NoError(t, err)

	got, err := Verify(signed, signer.PublicKey)
	assert.NoError(t, err)
	check.Equal(t, r, got)
}

func TestVerify_WrongKey(t *testing.T) {
	signer, err := NewSigner()
	assert.NoError(t, err)
	other, err := NewSigner()
	assert.NoError(t, err)

	r, err := Build(settledAuction(t), 5000)
	assert.NoError(t, err)
	signed, err := signer.Sign(r)
	assert.NoError(t, err)

	_, err = Verify(signed, other.PublicKey)
	check.True(t, errors.Is(err, ErrInvalidReceipt))
}

func TestVerify_TamperedBytes(t *testing.T) {
	signer, err := NewSigner()
	assert.NoError(t, err)
	r, err := Build(settledAuction(t), 5000)
	assert.NoError(t, err)
	signed, err := signer.Sign(r)
	assert.NoError(t, err)

	tampered := append(auctionapi.ReceiptCOSE{}, signed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = Verify(tampered, signer.PublicKey)
	check.True(t, errors.Is(err, ErrInvalidReceipt))

	_, err = Verify(auctionapi.ReceiptCOSE("garbage"), signer.PublicKey)
	check.True(t, errors.Is(err, ErrInvalidReceipt))
}

func TestSigner_PEMRoundTrip(t *testing.T) {
	signer, err := NewSigner()
	assert.NoError(t, err)

	privPEM, err := signer.PrivateKeyPEM()
	assert.NoError(t, err)
	loaded, err := LoadSigner(privPEM)
	assert.NoError(t, err)

	pubPEM, err := signer.PublicKeyPEM()
	assert.NoError(t, err)
	pub, err := ParsePublicKeyPEM(pubPEM)
	assert.NoError(t, err)
	check.True(t, pub.Equal(signer.PublicKey))

	// A receipt signed by the reloaded key verifies under the original public key
	r, err := Build(settledAuction(t), 5000)
	assert.NoError(t, err)
	signed, err := loaded.Sign(r)
	assert.NoError(t, err)
	_, err = Verify(signed, pub)
	check.NoError(t, err)

	_, err = LoadSigner([]byte("not pem"))
	check.Error(t, err)
	_, err = ParsePublicKeyPEM("not pem")
	check.Error(t, err)
}

func TestAttest_EmbedsReceiptDigest(t *testing.T) {
	signer, err := NewSigner()
	assert.NoError(t, err)
	pubPEM, err := signer.PublicKeyPEM()
	assert.NoError(t, err)

	r, err := Build(settledAuction(t), 5000)
	assert.NoError(t, err)
	signed, err := signer.Sign(r)
	assert.NoError(t, err)

	attester := newMockAttester(t)
	doc, err := Attest(attester, signed, pubPEM, zerolog.Nop())
	assert.NoError(t, err)
	check.Equal(t, 1, attester.calls)

	parsed, userData, err := ParseAttestation(doc)
	assert.NoError(t, err)
	check.Equal(t, "test-enclave-12345", parsed.ModuleID)
	check.Equal(t, 3, len(parsed.PCRs))
	check.Equal(t, DigestReceipt(signed), userData.ReceiptDigest)
	check.Equal(t, pubPEM, userData.PublicKey)
	check.Equal(t, 64, len(parsed.Nonce))

	report, err := ValidateAttestation(doc, signed, nil)
	assert.NoError(t, err)
	check.True(t, report.ReceiptBound)

	otherSigned, err := signer.Sign(r)
	assert.NoError(t, err)
	report, err = ValidateAttestation(doc, otherSigned, nil)
	assert.NoError(t, err)
	check.False(t, report.ReceiptBound)
}

func TestAttest_Failures(t *testing.T) {
	_, err := Attest(nil, auctionapi.ReceiptCOSE("x"), "", zerolog.Nop())
	check.Error(t, err)

	_, err = Attest(&mockAttester{}, auctionapi.ReceiptCOSE("x"), "", zerolog.Nop())
	check.Error(t, err)
}

func TestParseAttestation_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input auctionapi.ReceiptCOSE
	}{
		{"not cbor", auctionapi.ReceiptCOSE("garbage")},
		{"wrong arity", mustCBOR(t, []any{[]byte{1}, []byte{2}})},
		{"payload not bytes", mustCBOR(t, []any{[]byte{1}, map[string]any{}, 42, []byte{2}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseAttestation(tt.input)
			check.Error(t, err)
		})
	}
}
