package receipt

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/pullauction/core"
)

// mockAttester implements Attester for testing
type mockAttester struct {
	attestFunc func(options enclave.AttestationOptions) ([]byte, error)
	calls      int
}

func (m *mockAttester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	m.calls++
	if m.attestFunc != nil {
		return m.attestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	assert.NoError(t, err)
	return b
}

// newMockAttester returns an attester producing NSM-shaped documents that embed the caller's user data.
func newMockAttester(t *testing.T) *mockAttester {
	t.Helper()
	return &mockAttester{
		attestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1234567890),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  options.PublicKey,
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}

			// NSM 4-element array: [protected, unprotected, payload, signature]
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}

// settledAuction runs a small auction to completion: alice 6, bob 7, beneficiary ends.
func settledAuction(t *testing.T) *core.Auction {
	t.Helper()
	a, err := core.New(core.Call{Caller: "ben", Now: 1000}, 5, time.Minute, nil)
	assert.NoError(t, err)

	_, err = a.Bid(core.Call{Caller: "alice", Value: 6, Now: 2000})
	assert.NoError(t, err)
	_, err = a.Bid(core.Call{Caller: "bob", Value: 7, Now: 3000})
	assert.NoError(t, err)
	ok, err := a.End(core.Call{Caller: "ben", Now: 4000})
	assert.NoError(t, err)
	assert.True(t, ok)
	return a
}

// payAll is a Transferrer whose transfers always succeed.
type payAll struct{}

func (payAll) Transfer(core.ParticipantID, core.Amount) error { return nil }

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	b, err := cbor.Marshal(v)
	assert.NoError(t, err)
	return b
}

func attestOptionsFor(t *testing.T, signed []byte) enclave.AttestationOptions {
	t.Helper()
	userData, err := json.Marshal(AttestationUserData{ReceiptDigest: DigestReceipt(signed)})
	assert.NoError(t, err)
	return enclave.AttestationOptions{UserData: userData, Nonce: []byte("nonce")}
}
