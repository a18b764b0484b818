package receipt

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/pullauction/auctionapi"
)

// awsNitroRootCA is the root certificate for AWS Nitro Enclaves
// Valid until 2049-10-28, P-384 self-signed certificate
// Source: https://docs.aws.amazon.com/enclaves/latest/user/verify-root.html
const awsNitroRootCA = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

// PCRSet is a known-good set of enclave image measurements, hex encoded.
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // Commit the enclave image was built from
}

type pcrConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}

// LoadPCRSets reads known PCR sets from a JSON file.
func LoadPCRSets(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config pcrConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}
	return config.PCRSets, nil
}

// MatchPCRs returns the index of the first known set matching doc, or -1.
func MatchPCRs(doc *AttestationDocument, known []PCRSet) int {
	pcr0 := fmt.Sprintf("%x", doc.PCRs[0])
	pcr1 := fmt.Sprintf("%x", doc.PCRs[1])
	pcr2 := fmt.Sprintf("%x", doc.PCRs[2])
	for i, set := range known {
		if pcr0 == set.PCR0 && pcr1 == set.PCR1 && pcr2 == set.PCR2 {
			return i
		}
	}
	return -1
}

// AttestationReport collects the outcome of each attestation check.
type AttestationReport struct {
	ReceiptBound     bool
	PCRsValid        bool
	CertificateValid bool
	SignatureValid   bool
	Details          []string
}

func (r *AttestationReport) IsValid() bool {
	return r.ReceiptBound && r.PCRsValid && r.CertificateValid && r.SignatureValid
}

// ValidateAttestation runs every check on an attestation for signed. It only
// returns an error when the document cannot be parsed; failed checks are
// recorded in the report.
func ValidateAttestation(raw, signed auctionapi.ReceiptCOSE, known []PCRSet) (*AttestationReport, error) {
	doc, userData, err := ParseAttestation(raw)
	if err != nil {
		return nil, err
	}

	report := &AttestationReport{}

	report.ReceiptBound = userData.ReceiptDigest == DigestReceipt(signed)
	if report.ReceiptBound {
		report.Details = append(report.Details, "Attestation covers this receipt")
	} else {
		report.Details = append(report.Details, "Attestation is for a different receipt")
	}

	if idx := MatchPCRs(doc, known); idx >= 0 {
		report.PCRsValid = true
		report.Details = append(report.Details, fmt.Sprintf("Matched PCR set: #%d (commit: %s)", idx, known[idx].CommitHash))
	} else {
		report.Details = append(report.Details, fmt.Sprintf("PCR0: %x (no match)", doc.PCRs[0]))
	}

	if len(doc.Certificate) == 0 || len(doc.CABundle) == 0 {
		report.Details = append(report.Details, "Missing certificate or CA bundle")
	} else if err := ValidateCertificateChain(doc.Certificate, doc.CABundle, time.UnixMilli(int64(doc.Timestamp))); err != nil {
		report.Details = append(report.Details, fmt.Sprintf("Certificate chain validation failed: %v", err))
	} else {
		report.CertificateValid = true
		report.Details = append(report.Details, "Certificate chain verified")
	}

	if err := VerifyAttestationSignature(raw, doc.Certificate); err != nil {
		report.Details = append(report.Details, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		report.SignatureValid = true
		report.Details = append(report.Details, "COSE signature verified")
	}

	return report, nil
}

// ValidateCertificateChain verifies certDER up to the AWS Nitro root at the given time.
func ValidateCertificateChain(certDER []byte, caBundle [][]byte, at time.Time) error {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for _, caDER := range caBundle {
		caCert, err := x509.ParseCertificate(caDER)
		if err != nil {
			return fmt.Errorf("parse CA certificate: %w", err)
		}
		intermediates.AddCert(caCert)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(awsNitroRootCA)) {
		return fmt.Errorf("failed to parse AWS Nitro root CA")
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate chain validation failed: %w", err)
	}
	return nil
}

// VerifyAttestationSignature checks the ES384 signature of an untagged NSM
// COSE_Sign1 document against the key in certDER.
func VerifyAttestationSignature(raw auctionapi.ReceiptCOSE, certDER []byte) error {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	// NSM returns untagged COSE_Sign1: [protected, unprotected, payload, signature]
	var coseArray []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &coseArray); err != nil {
		return fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	var protected, payload, signature []byte
	for i, dst := range map[int]*[]byte{0: &protected, 2: &payload, 3: &signature} {
		if err := cbor.Unmarshal(coseArray[i], dst); err != nil {
			return fmt.Errorf("invalid COSE element %d: %w", i, err)
		}
	}

	// Sig_structure for COSE_Sign1 with empty external_aad
	sigStructure, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return fmt.Errorf("marshal Sig_structure: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}
	if err := verifier.Verify(sigStructure, signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}
