package main

import (
	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
)

// fakeNSM returns a minimal NSM-shaped attestation carrying the caller's user data.
type fakeNSM struct{}

func (fakeNSM) Attest(options enclave.AttestationOptions) ([]byte, error) {
	nested, err := cbor.Marshal(map[string]any{
		"module_id": "auctionctl-test",
		"digest":    "SHA384",
		"timestamp": uint64(1),
		"user_data": options.UserData,
		"nonce":     options.Nonce,
	})
	if err != nil {
		return nil, err
	}
	return cbor.Marshal([]any{[]byte{0xa1}, map[string]any{}, nested, []byte{0x00}})
}
