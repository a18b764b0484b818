package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cloudx-io/pullauction/auctionapi"
	"github.com/cloudx-io/pullauction/core"
	"github.com/cloudx-io/pullauction/journal"
	"github.com/cloudx-io/pullauction/observe"
	"github.com/cloudx-io/pullauction/receipt"
	"github.com/cloudx-io/pullauction/server"
)

var rootCmd = &cobra.Command{
	Use:          "auctionctl",
	Short:        "Replay, query and verify pull-payment auctions",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&runFlags.journalPath, "journal", "", "write the committed events to a CBOR journal")
	runCmd.Flags().StringVar(&runFlags.receiptKey, "receipt-key", "", "PEM EC key used to sign a receipt once the auction has ended")
	runCmd.Flags().StringVar(&runFlags.receiptOut, "receipt-out", "receipt.cose", "where to write the signed receipt")
	runCmd.Flags().StringVar(&runFlags.encoding, "encoding", encodingRaw, "receipt file encoding: raw, base64, url or gzip")
	runCmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "log every event")

	verifyCmd.Flags().StringVar(&verifyFlags.publicKey, "public-key", "", "PEM public key file (required)")
	verifyCmd.Flags().StringVar(&verifyFlags.attestation, "attestation", "", "NSM attestation document that must vouch for the receipt")
	verifyCmd.Flags().StringVar(&verifyFlags.pcrs, "pcrs", "", "JSON file of known-good PCR sets for the attestation")
	verifyCmd.Flags().StringVar(&verifyFlags.encoding, "encoding", encodingRaw, "receipt file encoding: raw, base64, url or gzip")
	verifyCmd.Flags().BoolVar(&verifyFlags.strict, "strict", false, "fail unless every attestation check passes")
	_ = verifyCmd.MarkFlagRequired("public-key")
	receiptCmd.AddCommand(verifyCmd)

	journalCmd.AddCommand(journalDumpCmd)

	callCmd.Flags().StringVar(&callFlags.addr, "addr", "127.0.0.1:5000", "auctiond address")
	callCmd.Flags().StringVar(&callFlags.caller, "caller", "", "calling participant")
	callCmd.Flags().StringVar(&callFlags.value, "value", "", "attached value for bids, as a decimal")
	callCmd.Flags().StringVar(&callFlags.participant, "participant", "", "participant for balance queries")
	callCmd.Flags().DurationVar(&callFlags.timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(runCmd, receiptCmd, journalCmd, callCmd)
}

var runFlags struct {
	journalPath string
	receiptKey  string
	receiptOut  string
	encoding    string
	verbose     bool
}

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Replay a scripted auction on a simulated chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := LoadScenario(args[0])
		if err != nil {
			return err
		}

		var sinks observe.Fanout
		if runFlags.verbose {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			sinks = append(sinks, observe.NewLogSink(logger))
		}
		var jw *journal.Writer
		if runFlags.journalPath != "" {
			f, err := os.Create(runFlags.journalPath)
			if err != nil {
				return fmt.Errorf("create journal: %w", err)
			}
			defer f.Close()
			jw = journal.NewWriter(f, zerolog.Nop())
			sinks = append(sinks, jw)
		}

		runner, err := NewRunner(sc, sinks, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := runner.Run(); err != nil {
			return err
		}
		if err := runner.PrintSummary(); err != nil {
			return err
		}
		if jw != nil {
			if err := jw.Err(); err != nil {
				return fmt.Errorf("write journal: %w", err)
			}
		}

		if runFlags.receiptKey != "" {
			return writeReceipt(cmd, runner, runFlags.receiptKey, runFlags.receiptOut, runFlags.encoding)
		}
		return nil
	},
}

func writeReceipt(cmd *cobra.Command, runner *Runner, keyPath, outPath, encoding string) error {
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("read receipt key: %w", err)
	}
	signer, err := receipt.LoadSigner(pemBytes)
	if err != nil {
		return err
	}

	a, err := runner.Chain().Snapshot()
	if err != nil {
		return err
	}
	r, err := receipt.Build(a, runner.Chain().Now())
	if err != nil {
		return err
	}
	signed, err := signer.Sign(r)
	if err != nil {
		return err
	}
	data, err := encodeReceipt(signed, encoding)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "receipt written to %s (outcome %s)\n", outPath, r.OutcomeDigest)
	return nil
}

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Work with signed settlement receipts",
}

var verifyFlags struct {
	publicKey   string
	attestation string
	pcrs        string
	encoding    string
	strict      bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify <receipt.cose>",
	Short: "Check a receipt's signature and print its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read receipt: %w", err)
		}
		raw, err := decodeReceipt(data, verifyFlags.encoding)
		if err != nil {
			return err
		}
		pemBytes, err := os.ReadFile(verifyFlags.publicKey)
		if err != nil {
			return fmt.Errorf("read public key: %w", err)
		}

		r, err := verifyReceipt(raw, string(pemBytes))
		if err != nil {
			return err
		}

		if verifyFlags.attestation != "" {
			report, err := checkAttestation(raw, verifyFlags.attestation, verifyFlags.pcrs)
			if err != nil {
				return err
			}
			for _, line := range report.Details {
				fmt.Fprintf(cmd.ErrOrStderr(), "attestation: %s\n", line)
			}
			if verifyFlags.strict && !report.IsValid() {
				return fmt.Errorf("%w: attestation checks failed", receipt.ErrInvalidReceipt)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	},
}

// Receipt file encodings. url and gzip are the unpadded URL-safe forms that
// fit in query strings.
const (
	encodingRaw    = "raw"
	encodingBase64 = "base64"
	encodingURL    = "url"
	encodingGzip   = "gzip"
)

func encodeReceipt(signed auctionapi.ReceiptCOSE, encoding string) ([]byte, error) {
	switch encoding {
	case encodingRaw:
		return signed, nil
	case encodingBase64:
		return []byte(signed.EncodeBase64()), nil
	case encodingURL:
		return []byte(signed.EncodeURLSafe()), nil
	case encodingGzip:
		compressed, err := signed.CompressGzip()
		if err != nil {
			return nil, err
		}
		return []byte(compressed), nil
	default:
		return nil, fmt.Errorf("unknown receipt encoding %q", encoding)
	}
}

func decodeReceipt(data []byte, encoding string) (auctionapi.ReceiptCOSE, error) {
	text := strings.TrimSpace(string(data))
	switch encoding {
	case encodingRaw:
		return auctionapi.ReceiptCOSE(data), nil
	case encodingBase64:
		return auctionapi.ReceiptCOSEBase64(text).Decode()
	case encodingURL:
		return auctionapi.ReceiptCOSEURLBase64(text).Decode()
	case encodingGzip:
		return auctionapi.ReceiptCOSEURLBase64(text).Decompress()
	default:
		return nil, fmt.Errorf("unknown receipt encoding %q", encoding)
	}
}

func verifyReceipt(signed auctionapi.ReceiptCOSE, publicKeyPEM string) (receipt.Receipt, error) {
	pub, err := receipt.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return receipt.Receipt{}, err
	}
	return receipt.Verify(signed, pub)
}

// checkAttestation validates an attestation for signed. A document for a
// different receipt is always an error; the other checks are reported.
func checkAttestation(signed auctionapi.ReceiptCOSE, attestationPath, pcrsPath string) (*receipt.AttestationReport, error) {
	doc, err := os.ReadFile(attestationPath)
	if err != nil {
		return nil, fmt.Errorf("read attestation: %w", err)
	}

	var known []receipt.PCRSet
	if pcrsPath != "" {
		known, err = receipt.LoadPCRSets(pcrsPath)
		if err != nil {
			return nil, err
		}
	}

	report, err := receipt.ValidateAttestation(auctionapi.ReceiptCOSE(doc), signed, known)
	if err != nil {
		return nil, err
	}
	if !report.ReceiptBound {
		return report, fmt.Errorf("%w: attestation is for a different receipt", receipt.ErrInvalidReceipt)
	}
	return report, nil
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect CBOR event journals",
}

var journalDumpCmd = &cobra.Command{
	Use:   "dump <journal.cbor>",
	Short: "Print every journal record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer f.Close()

		records, err := journal.ReadAll(f)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, rec := range records {
			e, err := rec.Event()
			if err != nil {
				return err
			}
			if err := enc.Encode(struct {
				ID    string         `json:"id"`
				Seq   uint64         `json:"seq"`
				Kind  core.EventKind `json:"kind"`
				Event core.Event     `json:"event"`
			}{rec.ID, rec.Seq, rec.Kind, e}); err != nil {
				return err
			}
		}
		return nil
	},
}

var callFlags struct {
	addr        string
	caller      string
	value       string
	participant string
	timeout     time.Duration
}

var callCmd = &cobra.Command{
	Use:       "call <ping|query|balance|bid|end|withdraw|receipt>",
	Short:     "Send one request to a running auctiond",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{auctionapi.TypePing, auctionapi.TypeQuery, auctionapi.TypeBalance, auctionapi.TypeBid, auctionapi.TypeEnd, auctionapi.TypeWithdraw, auctionapi.TypeReceipt},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callFlags.timeout)
		defer cancel()

		client, err := server.Dial(ctx, callFlags.addr)
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.Do(auctionapi.CallRequest{
			Type:        args[0],
			Caller:      core.ParticipantID(callFlags.caller),
			Value:       callFlags.value,
			Participant: core.ParticipantID(callFlags.participant),
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("request failed: %s", resp.Message)
		}
		return nil
	},
}
