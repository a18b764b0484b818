package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// ReceiptCOSE is a raw COSE_Sign1 settlement receipt.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is a standard base64 encoded receipt, used in JSON bodies.
type ReceiptCOSEBase64 string

// ReceiptCOSEURLBase64 is an unpadded URL-safe base64 receipt, optionally gzipped.
type ReceiptCOSEURLBase64 string

// EncodeBase64 encodes the receipt with standard base64.
func (r ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(r))
}

// EncodeURLSafe encodes the receipt with unpadded URL-safe base64.
func (r ReceiptCOSE) EncodeURLSafe() ReceiptCOSEURLBase64 {
	return ReceiptCOSEURLBase64(base64.RawURLEncoding.EncodeToString(r))
}

// CompressGzip gzips the receipt and encodes it URL-safe, for query strings.
func (r ReceiptCOSE) CompressGzip() (ReceiptCOSEURLBase64, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(r); err != nil {
		return "", fmt.Errorf("gzip receipt: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close gzip writer: %w", err)
	}
	return ReceiptCOSEURLBase64(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// Decode returns the raw receipt bytes.
func (b ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	raw, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

// String returns the encoded form.
func (b ReceiptCOSEBase64) String() string { return string(b) }

// Decode returns the raw receipt bytes. Padding is optional.
func (u ReceiptCOSEURLBase64) Decode() (ReceiptCOSE, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(u), "="))
	if err != nil {
		return nil, fmt.Errorf("decode COSE URL base64: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

// Decompress reverses CompressGzip.
func (u ReceiptCOSEURLBase64) Decompress() (ReceiptCOSE, error) {
	compressed, err := u.Decode()
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip receipt: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

// String returns the encoded form.
func (u ReceiptCOSEURLBase64) String() string { return string(u) }
