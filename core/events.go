package core

import "fmt"

// EventKind names a state transition.
type EventKind string

const (
	KindCreated                 EventKind = "created"
	KindNewHighestBid           EventKind = "new_highest_bid"
	KindBidRejectedBelowStart   EventKind = "bid_rejected_below_start"
	KindBidRejectedBelowHighest EventKind = "bid_rejected_below_highest"
	KindBidRejectedAuctionEnded EventKind = "bid_rejected_auction_ended"
	KindEnded                   EventKind = "ended"
	KindAlreadyEnded            EventKind = "already_ended"
	KindNotAuthorizedToEnd      EventKind = "not_authorized_to_end"
	KindWithdrawal              EventKind = "withdrawal"
)

// AllEventKinds lists every kind in emission-taxonomy order.
var AllEventKinds = []EventKind{
	KindCreated,
	KindNewHighestBid,
	KindBidRejectedBelowStart,
	KindBidRejectedBelowHighest,
	KindBidRejectedAuctionEnded,
	KindEnded,
	KindAlreadyEnded,
	KindNotAuthorizedToEnd,
	KindWithdrawal,
}

// Event is one observed transition.
type Event interface {
	Kind() EventKind
}

// Sink receives events. Emit must not fail or block the transition.
type Sink interface {
	Emit(Event)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// NopSink discards every event.
var NopSink Sink = nopSink{}

type Created struct {
	Beneficiary   ParticipantID `json:"beneficiary" cbor:"beneficiary"`
	StartingPrice Amount        `json:"starting_price" cbor:"starting_price"`
	CreatedTime   Timestamp     `json:"created_time" cbor:"created_time"`
	EndTime       Timestamp     `json:"end_time" cbor:"end_time"`
}

type NewHighestBid struct {
	PrevBidder ParticipantID `json:"prev_bidder" cbor:"prev_bidder"`
	PrevAmount Amount        `json:"prev_amount" cbor:"prev_amount"`
	NewBidder  ParticipantID `json:"new_bidder" cbor:"new_bidder"`
	NewAmount  Amount        `json:"new_amount" cbor:"new_amount"`
}

type BidRejectedBelowStart struct {
	Bidder        ParticipantID `json:"bidder" cbor:"bidder"`
	Amount        Amount        `json:"amount" cbor:"amount"`
	StartingPrice Amount        `json:"starting_price" cbor:"starting_price"`
}

type BidRejectedBelowHighest struct {
	Bidder        ParticipantID `json:"bidder" cbor:"bidder"`
	Amount        Amount        `json:"amount" cbor:"amount"`
	HighestBidder ParticipantID `json:"highest_bidder" cbor:"highest_bidder"`
	HighestBid    Amount        `json:"highest_bid" cbor:"highest_bid"`
}

type BidRejectedAuctionEnded struct {
	Bidder ParticipantID `json:"bidder" cbor:"bidder"`
	Amount Amount        `json:"amount" cbor:"amount"`
}

type Ended struct {
	HighestBidder ParticipantID `json:"highest_bidder" cbor:"highest_bidder"`
	HighestBid    Amount        `json:"highest_bid" cbor:"highest_bid"`
}

type AlreadyEnded struct {
	HighestBidder ParticipantID `json:"highest_bidder" cbor:"highest_bidder"`
	HighestBid    Amount        `json:"highest_bid" cbor:"highest_bid"`
}

type NotAuthorizedToEnd struct {
	Caller      ParticipantID `json:"caller" cbor:"caller"`
	Beneficiary ParticipantID `json:"beneficiary" cbor:"beneficiary"`
}

type Withdrawal struct {
	Participant ParticipantID `json:"participant" cbor:"participant"`
	Amount      Amount        `json:"amount" cbor:"amount"`
}

func (Created) Kind() EventKind                 { return KindCreated }
func (NewHighestBid) Kind() EventKind           { return KindNewHighestBid }
func (BidRejectedBelowStart) Kind() EventKind   { return KindBidRejectedBelowStart }
func (BidRejectedBelowHighest) Kind() EventKind { return KindBidRejectedBelowHighest }
func (BidRejectedAuctionEnded) Kind() EventKind { return KindBidRejectedAuctionEnded }
func (Ended) Kind() EventKind                   { return KindEnded }
func (AlreadyEnded) Kind() EventKind            { return KindAlreadyEnded }
func (NotAuthorizedToEnd) Kind() EventKind      { return KindNotAuthorizedToEnd }
func (Withdrawal) Kind() EventKind              { return KindWithdrawal }

// DecodeEvent builds the event value for kind, filling it with unmarshal.
// It is shared by the JSON and CBOR codecs.
func DecodeEvent(kind EventKind, unmarshal func(v any) error) (Event, error) {
	switch kind {
	case KindCreated:
		return decodeAs[Created](unmarshal)
	case KindNewHighestBid:
		return decodeAs[NewHighestBid](unmarshal)
	case KindBidRejectedBelowStart:
		return decodeAs[BidRejectedBelowStart](unmarshal)
	case KindBidRejectedBelowHighest:
		return decodeAs[BidRejectedBelowHighest](unmarshal)
	case KindBidRejectedAuctionEnded:
		return decodeAs[BidRejectedAuctionEnded](unmarshal)
	case KindEnded:
		return decodeAs[Ended](unmarshal)
	case KindAlreadyEnded:
		return decodeAs[AlreadyEnded](unmarshal)
	case KindNotAuthorizedToEnd:
		return decodeAs[NotAuthorizedToEnd](unmarshal)
	case KindWithdrawal:
		return decodeAs[Withdrawal](unmarshal)
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

func decodeAs[T Event](unmarshal func(v any) error) (Event, error) {
	var e T
	if err := unmarshal(&e); err != nil {
		return nil, err
	}
	return e, nil
}
