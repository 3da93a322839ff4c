package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/cartridge/valuerl/internal/actor"
	"github.com/cartridge/valuerl/internal/agent"
	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/config"
	"github.com/cartridge/valuerl/internal/env"
	"github.com/cartridge/valuerl/internal/events"
	"github.com/cartridge/valuerl/internal/health"
	httpServer "github.com/cartridge/valuerl/internal/http"
	"github.com/cartridge/valuerl/internal/metrics"
	"github.com/cartridge/valuerl/internal/report"
	"github.com/cartridge/valuerl/internal/service"
)

const (
	healthCheckInterval = 5 * time.Second
	healthStallAfter    = time.Minute
	shutdownTimeout     = 30 * time.Second
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"config":          "config",
	"variant":         "variant",
	"capacity":        "capacity",
	"seed":            "seed",
	"episodes":        "episodes",
	"max-steps":       "max_steps",
	"corridor-length": "corridor_length",
	"http-addr":       "http_addr",
	"grpc-addr":       "grpc_addr",
	"nats-url":        "nats_url",
	"nats-subject":    "nats_subject",
	"chart-path":      "chart_path",
	"log-level":       "log_level",

	"learning-rate":           "agent.learning_rate",
	"gamma":                   "agent.gamma",
	"epsilon-start":           "agent.epsilon_start",
	"epsilon-min":             "agent.epsilon_min",
	"epsilon-decay":           "agent.epsilon_decay",
	"batch-size":              "agent.batch_size",
	"target-update-frequency": "agent.target_update_frequency",
	"burn-in-period":          "agent.burn_in_period",
	"soft-update":             "agent.soft_update",
	"t-weight":                "agent.t_weight",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "trainer",
		Short: "Value-based reinforcement learning trainer",
		Long: `Trainer runs DQN, Double DQN, DQV or DQV-Max against a corridor
environment, learning from a ring-buffer transition store.

Settings come from flags, VALUERL_* environment variables (for example
VALUERL_AGENT_BATCH_SIZE) and an optional YAML/JSON/TOML file given with
--config. Agent hyperparameter defaults depend on --variant.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to a config file")

	// Agent settings
	flags.String("variant", defaults.Variant, "Learning rule: dqn, double-dqn, dqv or dqv-max")
	flags.Int("capacity", defaults.Capacity, "Transition store capacity")
	flags.Int64("seed", defaults.Seed, "Random seed (0 seeds from the clock)")

	// Episode management
	flags.Int("episodes", defaults.Episodes, "Episodes to run (-1 for unlimited)")
	flags.Int("max-steps", defaults.MaxSteps, "Maximum steps per episode")
	flags.Int("corridor-length", defaults.CorridorLength, "Number of corridor cells")

	// Status surfaces
	flags.String("http-addr", defaults.HTTPAddr, "HTTP status listen address (empty disables)")
	flags.String("grpc-addr", defaults.GRPCAddr, "gRPC status listen address (empty disables)")
	flags.String("nats-url", defaults.NATSURL, "NATS server URL for training events (empty disables)")
	flags.String("nats-subject", defaults.NATSSubject, "NATS subject prefix")
	flags.String("chart-path", defaults.ChartPath, "Write an HTML chart of episode returns here on exit")

	// Logging
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")

	// Hyperparameters; zero values fall back to the variant's defaults
	flags.Float64("learning-rate", 0, "Approximator learning rate")
	flags.Float64("gamma", 0, "Discount factor")
	flags.Float64("epsilon-start", 0, "Initial exploration rate")
	flags.Float64("epsilon-min", 0, "Exploration floor")
	flags.Float64("epsilon-decay", 0, "Multiplicative exploration decay per learning step")
	flags.Int("batch-size", 0, "Learning batch size")
	flags.Int("target-update-frequency", 0, "Learning steps between target syncs")
	flags.Int("burn-in-period", 0, "Transitions stored before learning starts")
	flags.Bool("soft-update", false, "Interpolate the target network (double-dqn only)")
	flags.Float64("t-weight", 0, "Soft update weight τ")

	bindFlags(v, flags)
	return cmd
}

// bindFlags binds every known flag to its key. Flags the user did not set
// rank below viper defaults, so zero-valued hyperparameter flags never mask
// the variant defaults.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = v.BindPFlag(key, f)
		}
	})
}

func run(ctx context.Context, cfg *config.Config) error {
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	corridor, err := env.NewCorridor(cfg.CorridorLength)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(logger)
	factory := approx.LinearFactory(cfg.Agent.LearningRate, rng)
	ag, err := agent.New(agent.Options{
		Variant:    cfg.ParsedVariant(),
		Capacity:   cfg.Capacity,
		StateShape: corridor.ObservationShape(),
		NumActions: corridor.NumActions(),
		QFactory:   factory,
		VFactory:   factory,
		Hyper:      cfg.Agent,
		Rand:       rng,
		Logger:     logger,
		Metrics:    collector,
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("Publishing training events to NATS")
	}

	act, err := actor.New(actor.Config{MaxEpisodes: cfg.Episodes, MaxSteps: cfg.MaxSteps}, corridor, ag, publisher, collector, logger)
	if err != nil {
		return fmt.Errorf("create actor: %w", err)
	}

	monitor := health.NewMonitor(func() int { return act.Stats().TotalSteps },
		health.Config{CheckInterval: healthCheckInterval, StallAfter: healthStallAfter}, logger)
	go monitor.Start(ctx)

	var shutdowns []func(context.Context)
	if cfg.HTTPAddr != "" {
		shutdowns = append(shutdowns, startHTTP(cfg.HTTPAddr, httpServer.NewServer(act, monitor, logger), logger))
	}
	if cfg.GRPCAddr != "" {
		shutdown, err := startGRPC(cfg.GRPCAddr, service.NewStatusService(act), logger)
		if err != nil {
			return err
		}
		shutdowns = append(shutdowns, shutdown)
	}

	logger.Info().
		Str("run_id", act.RunID()).
		Str("variant", cfg.Variant).
		Int64("seed", seed).
		Msg("Starting training")

	runErr := act.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		logger.Info().Msg("Shutdown signal received, stopping training")
		runErr = nil
	}

	stats := act.Stats()
	logger.Info().
		Int("episodes", stats.Episodes).
		Int("total_steps", stats.TotalSteps).
		Int("learn_steps", stats.LearnSteps).
		Float64("epsilon", stats.Epsilon).
		Float64("mean_return", stats.MeanReturn).
		Msg("Training finished")

	if cfg.ChartPath != "" {
		title := fmt.Sprintf("%s corridor-%d", cfg.Variant, cfg.CorridorLength)
		if err := report.WriteReturnsChart(cfg.ChartPath, title, act.Returns()); err != nil {
			logger.Error().Err(err).Str("path", cfg.ChartPath).Msg("Failed to write returns chart")
		} else {
			logger.Info().Str("path", cfg.ChartPath).Msg("Wrote returns chart")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, shutdown := range shutdowns {
		shutdown(shutdownCtx)
	}

	return runErr
}

func startHTTP(addr string, h *httpServer.Server, logger zerolog.Logger) func(context.Context) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info().Str("addr", addr).Msg("HTTP status server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("HTTP graceful shutdown failed")
		}
		<-done
	}
}

func startGRPC(addr string, srv service.StatusServer, logger zerolog.Logger) (func(context.Context), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := grpc.NewServer(grpc.UnaryInterceptor(service.LoggingInterceptor(logger)))
	service.RegisterStatusServer(server, srv)

	go func() {
		logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC status server listening")
		if err := server.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	return func(ctx context.Context) {
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()

		select {
		case <-ctx.Done():
			logger.Warn().Msg("gRPC shutdown timeout exceeded, forcing stop")
			server.Stop()
		case <-stopped:
		}
	}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
