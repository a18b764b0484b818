package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudx-io/pullauction/auctionapi"
	"github.com/cloudx-io/pullauction/core"
	"github.com/cloudx-io/pullauction/host"
	"github.com/cloudx-io/pullauction/receipt"
)

// Handle processes a single request against the hosted auction.
func (s *Server) Handle(req auctionapi.CallRequest) auctionapi.CallResponse {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if s.clock != nil {
		s.chain.SetTime(s.clock())
	}

	logger := s.logger.With().Str("request_id", req.RequestID).Str("type", req.Type).Logger()
	logger.Debug().Str("caller", string(req.Caller)).Msg("Processing request")

	var (
		resp auctionapi.CallResponse
		err  error
	)
	switch req.Type {
	case auctionapi.TypePing:
		resp = auctionapi.CallResponse{Type: "pong", Success: true, Message: "auction server is healthy"}
	case auctionapi.TypeQuery:
		resp, err = s.handleQuery()
	case auctionapi.TypeBalance:
		resp, err = s.handleBalance(req)
	case auctionapi.TypeBid:
		resp, err = s.handleInvoke(req, host.OpBid)
	case auctionapi.TypeEnd:
		resp, err = s.handleInvoke(req, host.OpEnd)
	case auctionapi.TypeWithdraw:
		resp, err = s.handleInvoke(req, host.OpWithdraw)
	case auctionapi.TypeReceipt:
		resp, err = s.handleReceipt()
	default:
		err = fmt.Errorf("unknown request type: %s", req.Type)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Warn().Err(err).Msg("Request failed")
		resp = auctionapi.ErrorResponse(req.RequestID, err.Error())
	} else {
		if resp.Type == "" {
			resp.Type = req.Type
		}
		resp.RequestID = req.RequestID
		logger.Info().Bool("accepted", resp.Accepted).Msg("Request complete")
	}
	s.requests.WithLabelValues(req.Type, outcome).Inc()

	resp.ProcessingTime = time.Since(start).Milliseconds()
	return resp
}

func (s *Server) handleInvoke(req auctionapi.CallRequest, op host.Op) (auctionapi.CallResponse, error) {
	if req.Caller == "" {
		return auctionapi.CallResponse{}, fmt.Errorf("%s request requires a caller", req.Type)
	}

	var value core.Amount
	if req.Value != "" {
		v, err := auctionapi.ParseAmount(req.Value, s.decimals)
		if err != nil {
			return auctionapi.CallResponse{}, err
		}
		value = v
	}

	out, err := s.chain.Invoke(op, req.Caller, value)
	if err != nil {
		return auctionapi.CallResponse{}, err
	}

	events, err := auctionapi.NewEventRecords(out.Events)
	if err != nil {
		return auctionapi.CallResponse{}, err
	}
	return auctionapi.CallResponse{Success: true, Accepted: out.Accepted, Events: events}, nil
}

func (s *Server) handleQuery() (auctionapi.CallResponse, error) {
	state, err := s.chain.State()
	if err != nil {
		return auctionapi.CallResponse{}, err
	}
	view := StateView(state, s.decimals)
	return auctionapi.CallResponse{Success: true, State: &view}, nil
}

func (s *Server) handleBalance(req auctionapi.CallRequest) (auctionapi.CallResponse, error) {
	p := req.Participant
	if p == "" {
		p = req.Caller
	}
	if p == "" {
		return auctionapi.CallResponse{}, fmt.Errorf("balance request requires a participant")
	}

	balance, err := s.chain.BalanceOf(p)
	if err != nil {
		return auctionapi.CallResponse{}, err
	}
	return auctionapi.CallResponse{Success: true, Balance: auctionapi.FormatAmount(balance, s.decimals)}, nil
}

func (s *Server) handleReceipt() (auctionapi.CallResponse, error) {
	if s.signer == nil {
		return auctionapi.CallResponse{}, fmt.Errorf("receipts are not enabled")
	}

	a, err := s.chain.Snapshot()
	if err != nil {
		return auctionapi.CallResponse{}, err
	}
	r, err := receipt.Build(a, s.chain.Now())
	if err != nil {
		return auctionapi.CallResponse{}, err
	}
	signed, err := s.signer.Sign(r)
	if err != nil {
		return auctionapi.CallResponse{}, err
	}
	publicKey, err := s.signer.PublicKeyPEM()
	if err != nil {
		return auctionapi.CallResponse{}, err
	}

	resp := auctionapi.CallResponse{
		Success:   true,
		Receipt:   signed.EncodeBase64(),
		PublicKey: publicKey,
	}
	if s.attester != nil {
		doc, err := receipt.Attest(s.attester, signed, publicKey, s.logger)
		if err != nil {
			return auctionapi.CallResponse{}, err
		}
		resp.Attestation = doc.EncodeBase64()
	}
	return resp, nil
}

// StateView converts a host state into its wire form.
func StateView(state host.State, decimals int32) auctionapi.AuctionState {
	balances := make(map[core.ParticipantID]string, len(state.Balances))
	for p, b := range state.Balances {
		balances[p] = auctionapi.FormatAmount(b, decimals)
	}
	return auctionapi.AuctionState{
		Beneficiary:   state.Beneficiary,
		HighestBidder: state.HighestBidder,
		HighestBid:    auctionapi.FormatAmount(state.HighestBid, decimals),
		StartingPrice: auctionapi.FormatAmount(state.StartingPrice, decimals),
		AskingPrice:   auctionapi.FormatAmount(state.AskingPrice, decimals),
		Ended:         state.Ended,
		CreatedTime:   state.CreatedTime,
		EndTime:       state.EndTime,
		HasDeadline:   state.HasDeadline,
		TimeLeftMS:    state.TimeLeft.Milliseconds(),
		Balances:      balances,
	}
}
