package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/auctionapi"
)

// Attester produces NSM attestation documents. *enclave.EnclaveHandle satisfies it.
type Attester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// AttestationUserData binds a signed receipt and its verification key to an attestation.
type AttestationUserData struct {
	ReceiptDigest string `json:"receipt_digest"`
	PublicKey     string `json:"public_key"`
}

// AttestationDocument is the payload of an NSM attestation.
type AttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// DigestReceipt returns the hex SHA-256 of a signed receipt.
func DigestReceipt(signed auctionapi.ReceiptCOSE) string {
	hash := sha256.Sum256(signed)
	return hex.EncodeToString(hash[:])
}

// Attest asks the enclave to vouch for a signed receipt and the key that signed it.
func Attest(attester Attester, signed auctionapi.ReceiptCOSE, publicKeyPEM string, logger zerolog.Logger) (auctionapi.ReceiptCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(AttestationUserData{
		ReceiptDigest: DigestReceipt(signed),
		PublicKey:     publicKeyPEM,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	doc, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		logger.Error().Err(err).Msg("NSM attestation failed")
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	logger.Info().Int("bytes", len(doc)).Msg("Receipt attestation generated")
	return auctionapi.ReceiptCOSE(doc), nil
}

// ParseAttestation extracts the attestation document and its user data from
// the untagged COSE_Sign1 array the NSM returns. The signature is not checked.
func ParseAttestation(raw auctionapi.ReceiptCOSE) (*AttestationDocument, *AttestationUserData, error) {
	var coseArray []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &coseArray); err != nil {
		return nil, nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	var payload []byte
	if err := cbor.Unmarshal(coseArray[2], &payload); err != nil {
		return nil, nil, fmt.Errorf("invalid payload in COSE structure: %w", err)
	}

	var doc AttestationDocument
	if err := cbor.Unmarshal(payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	var userData AttestationUserData
	if err := json.Unmarshal(doc.UserData, &userData); err != nil {
		return nil, nil, fmt.Errorf("parse attestation user data: %w", err)
	}
	return &doc, &userData, nil
}
