package observe

import (
	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/core"
)

// LogSink writes one structured log line per event.
// Rejections are logged at warn level, everything else at info.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "auction").Logger()}
}

func (s *LogSink) Emit(e core.Event) {
	switch ev := e.(type) {
	case core.Created:
		s.logger.Info().
			Str("beneficiary", string(ev.Beneficiary)).
			Uint64("starting_price", uint64(ev.StartingPrice)).
			Uint64("created_time", uint64(ev.CreatedTime)).
			Uint64("end_time", uint64(ev.EndTime)).
			Msg("Auction created")
	case core.NewHighestBid:
		s.logger.Info().
			Str("prev_bidder", string(ev.PrevBidder)).
			Uint64("prev_amount", uint64(ev.PrevAmount)).
			Str("bidder", string(ev.NewBidder)).
			Uint64("amount", uint64(ev.NewAmount)).
			Msg("New highest bid")
	case core.BidRejectedBelowStart:
		s.logger.Warn().
			Str("bidder", string(ev.Bidder)).
			Uint64("amount", uint64(ev.Amount)).
			Uint64("starting_price", uint64(ev.StartingPrice)).
			Msg("Bid rejected: not above starting price")
	case core.BidRejectedBelowHighest:
		s.logger.Warn().
			Str("bidder", string(ev.Bidder)).
			Uint64("amount", uint64(ev.Amount)).
			Str("highest_bidder", string(ev.HighestBidder)).
			Uint64("highest_bid", uint64(ev.HighestBid)).
			Msg("Bid rejected: not above highest bid")
	case core.BidRejectedAuctionEnded:
		s.logger.Warn().
			Str("bidder", string(ev.Bidder)).
			Uint64("amount", uint64(ev.Amount)).
			Msg("Bid rejected: auction ended")
	case core.Ended:
		s.logger.Info().
			Str("highest_bidder", string(ev.HighestBidder)).
			Uint64("highest_bid", uint64(ev.HighestBid)).
			Msg("Auction ended")
	case core.AlreadyEnded:
		s.logger.Warn().
			Str("highest_bidder", string(ev.HighestBidder)).
			Uint64("highest_bid", uint64(ev.HighestBid)).
			Msg("End rejected: already ended")
	case core.NotAuthorizedToEnd:
		s.logger.Warn().
			Str("caller", string(ev.Caller)).
			Str("beneficiary", string(ev.Beneficiary)).
			Msg("End rejected: not authorized")
	case core.Withdrawal:
		s.logger.Info().
			Str("participant", string(ev.Participant)).
			Uint64("amount", uint64(ev.Amount)).
			Msg("Withdrawal")
	default:
		s.logger.Info().Str("kind", string(e.Kind())).Msg("Auction event")
	}
}
