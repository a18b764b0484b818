package auctionapi

import (
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/pullauction/core"
)

// Request types accepted by the auction server.
const (
	TypePing     = "ping"
	TypeQuery    = "query"
	TypeBalance  = "balance"
	TypeBid      = "bid"
	TypeEnd      = "end"
	TypeWithdraw = "withdraw"
	TypeReceipt  = "receipt"
)

// CallRequest is one request sent to the auction server.
// Value is a decimal string in display units; only bid requests carry one.
type CallRequest struct {
	Type        string             `json:"type"`
	RequestID   string             `json:"request_id,omitempty"`
	Caller      core.ParticipantID `json:"caller,omitempty"`
	Value       string             `json:"value,omitempty"`
	Participant core.ParticipantID `json:"participant,omitempty"` // For balance queries
}

// EventRecord carries one event over the wire.
type EventRecord struct {
	Kind    core.EventKind  `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewEventRecord encodes e for transport.
func NewEventRecord(e core.Event) (EventRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode %s event: %w", e.Kind(), err)
	}
	return EventRecord{Kind: e.Kind(), Payload: payload}, nil
}

// NewEventRecords encodes a batch of events.
func NewEventRecords(events []core.Event) ([]EventRecord, error) {
	records := make([]EventRecord, 0, len(events))
	for _, e := range events {
		record, err := NewEventRecord(e)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Event decodes the record back into its typed event.
func (r EventRecord) Event() (core.Event, error) {
	return core.DecodeEvent(r.Kind, func(v any) error {
		return json.Unmarshal(r.Payload, v)
	})
}

// AuctionState is the query view of the auction. Amounts are decimal strings.
type AuctionState struct {
	Beneficiary   core.ParticipantID            `json:"beneficiary"`
	HighestBidder core.ParticipantID            `json:"highest_bidder"`
	HighestBid    string                        `json:"highest_bid"`
	StartingPrice string                        `json:"starting_price"`
	AskingPrice   string                        `json:"asking_price"`
	Ended         bool                          `json:"ended"`
	CreatedTime   core.Timestamp                `json:"created_time"`
	EndTime       core.Timestamp                `json:"end_time"`
	HasDeadline   bool                          `json:"has_deadline"`
	TimeLeftMS    int64                         `json:"time_left_ms"`
	Balances      map[core.ParticipantID]string `json:"balances,omitempty"`
}

// CallResponse is the server's reply to a CallRequest.
type CallResponse struct {
	Type           string            `json:"type"`
	RequestID      string            `json:"request_id"`
	Success        bool              `json:"success"`
	Accepted       bool              `json:"accepted"`
	Message        string            `json:"message,omitempty"`
	Events         []EventRecord     `json:"events,omitempty"`
	State          *AuctionState     `json:"state,omitempty"`
	Balance        string            `json:"balance,omitempty"`
	Receipt        ReceiptCOSEBase64 `json:"receipt,omitempty"`
	Attestation    ReceiptCOSEBase64 `json:"attestation,omitempty"`
	PublicKey      string            `json:"public_key,omitempty"` // PEM, verifies Receipt
	ProcessingTime int64             `json:"processing_time_ms"`
}

// ErrorResponse builds a failed response.
func ErrorResponse(requestID, message string) CallResponse {
	return CallResponse{
		Type:      "error",
		RequestID: requestID,
		Success:   false,
		Message:   message,
	}
}
