// Package server exposes a hosted auction over a JSON-over-stream protocol.
// Each connection carries a sequence of newline-delimited CallRequest values,
// each answered by one CallResponse.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/pullauction/auctionapi"
	"github.com/cloudx-io/pullauction/config"
	"github.com/cloudx-io/pullauction/core"
	"github.com/cloudx-io/pullauction/host"
	"github.com/cloudx-io/pullauction/receipt"
)

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	MaxWorkers  int
	ReadTimeout time.Duration
	Decimals    int32
	Signer      *receipt.Signer
	Attester    receipt.Attester
	Clock       func() core.Timestamp // Moves the chain clock before each request
	Logger      zerolog.Logger
	Registerer  prometheus.Registerer
}

type Server struct {
	chain       *host.Chain
	signer      *receipt.Signer
	attester    receipt.Attester
	clock       func() core.Timestamp
	decimals    int32
	maxWorkers  int
	readTimeout time.Duration
	logger      zerolog.Logger

	requests *prometheus.CounterVec
	rejected prometheus.Counter
}

func New(chain *host.Chain, opts Options) (*Server, error) {
	s := &Server{
		chain:       chain,
		signer:      opts.Signer,
		attester:    opts.Attester,
		clock:       opts.Clock,
		decimals:    opts.Decimals,
		maxWorkers:  opts.MaxWorkers,
		readTimeout: opts.ReadTimeout,
		logger:      opts.Logger.With().Str("component", "server").Logger(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_requests_total",
			Help: "Requests handled, by type and outcome.",
		}, []string{"type", "outcome"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_rejected_connections_total",
			Help: "Connections closed because every worker was busy.",
		}),
	}
	if s.maxWorkers < 1 {
		s.maxWorkers = 1
	}
	if s.readTimeout <= 0 {
		s.readTimeout = 30 * time.Second
	}

	if opts.Registerer != nil {
		for _, c := range []prometheus.Collector{s.requests, s.rejected} {
			if err := opts.Registerer.Register(c); err != nil {
				return nil, fmt.Errorf("register server metrics: %w", err)
			}
		}
	}
	return s, nil
}

// Listen opens a listener on the configured transport.
func Listen(transport string, port uint32) (net.Listener, error) {
	switch transport {
	case config.TransportVsock:
		listener, err := vsock.Listen(port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return listener, nil
	case config.TransportTCP:
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return listener, nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

// Serve accepts connections until ctx is cancelled. Connections that arrive
// while every worker is busy are closed immediately.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error().Err(err).Msg("Failed to close listener")
		}
	}()

	s.logger.Info().Str("addr", listener.Addr().String()).Int("max_workers", s.maxWorkers).Msg("Auction server listening")
	semaphore := make(chan struct{}, s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Msg("Auction server stopped")
				return nil
			}
			s.logger.Error().Err(err).Msg("Failed to accept connection")
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			s.rejected.Inc()
			s.logger.Info().Msg("No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				s.logger.Error().Err(err).Msg("Failed to close rejected connection")
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Panic recovered in handleConnection")
		}
		if err := conn.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close connection")
		}
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		var req auctionapi.CallRequest
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Debug().Msg("Connection idle, closing")
				return
			}
			s.logger.Error().Err(err).Msg("Failed to decode request")
			_ = encoder.Encode(auctionapi.ErrorResponse("", fmt.Sprintf("Failed to decode request: %v", err)))
			return
		}

		resp := s.Handle(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode response")
			return
		}
	}
}
