package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cloudx-io/pullauction/auctionapi"
	"github.com/cloudx-io/pullauction/config"
	"github.com/cloudx-io/pullauction/core"
	"github.com/cloudx-io/pullauction/host"
	"github.com/cloudx-io/pullauction/journal"
	"github.com/cloudx-io/pullauction/observe"
	"github.com/cloudx-io/pullauction/receipt"
	"github.com/cloudx-io/pullauction/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "auctiond",
	Short:        "Host a pull-payment auction and serve it over tcp or vsock",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		logger := newLogger(os.Stderr, cfg.Log.Level)
		if err := config.ApplyEnv(&cfg, logger); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to auctiond YAML config")
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func wallClock() core.Timestamp {
	return core.Timestamp(time.Now().UnixMilli())
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	sinks := observe.Fanout{observe.NewLogSink(logger), observe.NewMetricsSink(reg)}

	if cfg.Journal.Path != "" {
		f, err := os.OpenFile(cfg.Journal.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close journal")
			}
		}()
		sinks = append(sinks, journal.NewWriter(f, logger))
		logger.Info().Str("path", cfg.Journal.Path).Msg("Journal opened")
	}

	chain, err := deploy(cfg, sinks, logger)
	if err != nil {
		return err
	}

	signer, err := loadSigner(cfg.Receipt.KeyFile, logger)
	if err != nil {
		return err
	}

	var attester receipt.Attester
	if cfg.Receipt.Attest {
		handle, err := enclave.GetOrInitializeHandle()
		if err != nil {
			return fmt.Errorf("NSM not available: %w", err)
		}
		attester = handle
		logger.Info().Msg("NSM attester initialized")
	}

	srv, err := server.New(chain, server.Options{
		MaxWorkers:  cfg.Server.MaxWorkers,
		ReadTimeout: cfg.ReadTimeout(),
		Decimals:    cfg.Auction.Decimals,
		Signer:      signer,
		Attester:    attester,
		Clock:       wallClock,
		Logger:      logger,
		Registerer:  reg,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stopMetrics()
	}

	listener, err := server.Listen(cfg.Server.Transport, cfg.Server.Port)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, listener)
}

// deploy funds the configured accounts and opens the auction at the current wall-clock time.
func deploy(cfg config.Config, sink core.Sink, logger zerolog.Logger) (*host.Chain, error) {
	chain := host.NewChain(host.WithSink(sink), host.WithLogger(logger), host.WithClock(wallClock()))

	for p, value := range cfg.Accounts {
		amount, err := auctionapi.ParseAmount(value, cfg.Auction.Decimals)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", p, err)
		}
		if err := chain.Fund(core.ParticipantID(p), amount); err != nil {
			return nil, err
		}
	}

	startingPrice, err := auctionapi.ParseAmount(cfg.Auction.StartingPrice, cfg.Auction.Decimals)
	if err != nil {
		return nil, fmt.Errorf("starting price: %w", err)
	}
	if err := chain.Create(core.ParticipantID(cfg.Auction.Beneficiary), startingPrice, cfg.Duration()); err != nil {
		return nil, err
	}
	return chain, nil
}

// loadSigner reads the receipt key from path, creating it on first start.
// An empty path gives an ephemeral key.
func loadSigner(path string, logger zerolog.Logger) (*receipt.Signer, error) {
	if path == "" {
		logger.Warn().Msg("No receipt key file configured, using an ephemeral key")
		return receipt.NewSigner()
	}

	pemBytes, err := os.ReadFile(path)
	if err == nil {
		return receipt.LoadSigner(pemBytes)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read receipt key: %w", err)
	}

	signer, err := receipt.NewSigner()
	if err != nil {
		return nil, err
	}
	pemBytes, err = signer.PrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write receipt key: %w", err)
	}
	logger.Info().Str("path", path).Msg("Generated receipt signing key")
	return signer, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics endpoint failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics endpoint")
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
