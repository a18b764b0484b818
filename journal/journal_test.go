package journal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/core"
)

func TestWriter_RoundTripsEveryKind(t *testing.T) {
	events := []core.Event{
		core.Created{Beneficiary: "ben", StartingPrice: 5, CreatedTime: 1000, EndTime: 61000},
		core.NewHighestBid{PrevBidder: "ben", PrevAmount: 0, NewBidder: "alice", NewAmount: 6},
		core.BidRejectedBelowStart{Bidder: "carol", Amount: 5, StartingPrice: 5},
		core.BidRejectedBelowHighest{Bidder: "carol", Amount: 6, HighestBidder: "alice", HighestBid: 6},
		core.BidRejectedAuctionEnded{Bidder: "dave", Amount: 9},
		core.Ended{HighestBidder: "alice", HighestBid: 6},
		core.AlreadyEnded{HighestBidder: "alice", HighestBid: 6},
		core.NotAuthorizedToEnd{Caller: "bob", Beneficiary: "ben"},
		core.Withdrawal{Participant: "carol", Amount: 5},
	}
	check.Equal(t, len(core.AllEventKinds), len(events))

	var buf bytes.Buffer
	w := NewWriter(&buf, zerolog.Nop())
	for _, e := range events {
		w.Emit(e)
	}
	check.NoError(t, w.Err())

	records, err := ReadAll(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
	assert.Equal(t, len(events), len(records))
	for i, record := range records {
		check.Equal(t, uint64(i+1), record.Seq)
		check.Equal(t, events[i].Kind(), record.Kind)
		_, err := uuid.Parse(record.ID)
		check.NoError(t, err)
	}

	decoded, err := ReadEvents(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
	check.Equal(t, events, decoded)
}

func TestReadAll_EmptyStream(t *testing.T) {
	records, err := ReadAll(bytes.NewReader(nil))
	check.NoError(t, err)
	check.Equal(t, 0, len(records))
}

func TestReadAll_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, zerolog.Nop())
	w.Emit(core.Withdrawal{Participant: "alice", Amount: 3})
	w.Emit(core.Withdrawal{Participant: "bob", Amount: 4})

	truncated := buf.Bytes()[:buf.Len()-3]
	records, err := ReadAll(bytes.NewReader(truncated))
	check.Error(t, err)
	check.Equal(t, 1, len(records))
}

func TestRecord_UnknownKind(t *testing.T) {
	_, err := Record{Kind: "bogus"}.Event()
	check.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriter_WriteErrorIsRememberedNotPropagated(t *testing.T) {
	w := NewWriter(failingWriter{}, zerolog.Nop())

	w.Emit(core.Ended{HighestBidder: "alice", HighestBid: 6})

	check.Error(t, w.Err())
}
