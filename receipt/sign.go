package receipt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/pullauction/auctionapi"
)

// Algorithm is the COSE algorithm receipts are signed with.
const Algorithm = cose.AlgorithmES256

// Signer holds the ECDSA P-256 key receipts are signed with.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
	signer     cose.Signer
}

// NewSigner generates a fresh signing key.
func NewSigner() (*Signer, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return NewSignerFromKey(privateKey)
}

// NewSignerFromKey wraps an existing P-256 key.
func NewSignerFromKey(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	signer, err := cose.NewSigner(Algorithm, privateKey)
	if err != nil {
		return nil, fmt.Errorf("create COSE signer: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		signer:     signer,
	}, nil
}

// LoadSigner reads a PEM encoded EC private key.
func LoadSigner(pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}
	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse EC private key: %w", err)
	}
	return NewSignerFromKey(privateKey)
}

// PrivateKeyPEM exports the signing key.
func (s *Signer) PrivateKeyPEM() ([]byte, error) {
	derBytes, err := x509.MarshalECPrivateKey(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: derBytes}), nil
}

// PublicKeyPEM returns the verification key in PEM format
func (s *Signer) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(s.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes})), nil
}

// Sign encodes r as CBOR and wraps it in a tagged COSE_Sign1 message.
func (s *Signer) Sign(r Receipt) (auctionapi.ReceiptCOSE, error) {
	payload, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = Algorithm
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}

	raw, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("marshal COSE_Sign1: %w", err)
	}
	return auctionapi.ReceiptCOSE(raw), nil
}

// ParsePublicKeyPEM decodes a PEM encoded ECDSA public key.
func ParsePublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	ecdsaKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// Verify checks the COSE signature on raw and returns the receipt it carries.
func Verify(raw auctionapi.ReceiptCOSE, pub *ecdsa.PublicKey) (Receipt, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return Receipt{}, fmt.Errorf("%w: parse COSE_Sign1: %v", ErrInvalidReceipt, err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: read algorithm: %v", ErrInvalidReceipt, err)
	}
	if alg != Algorithm {
		return Receipt{}, fmt.Errorf("%w: unexpected algorithm %v", ErrInvalidReceipt, alg)
	}

	verifier, err := cose.NewVerifier(Algorithm, pub)
	if err != nil {
		return Receipt{}, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return Receipt{}, fmt.Errorf("%w: COSE signature verification failed: %v", ErrInvalidReceipt, err)
	}

	var r Receipt
	if err := cbor.Unmarshal(msg.Payload, &r); err != nil {
		return Receipt{}, fmt.Errorf("%w: decode payload: %v", ErrInvalidReceipt, err)
	}
	return r, nil
}
