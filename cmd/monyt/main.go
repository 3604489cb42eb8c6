package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ylmrx/monyt/internal/cloud/awsec2"
	"github.com/ylmrx/monyt/internal/cloud/imds"
	"github.com/ylmrx/monyt/internal/config"
	"github.com/ylmrx/monyt/internal/failover"
	"github.com/ylmrx/monyt/internal/logger"
	"github.com/ylmrx/monyt/internal/memberlist"
	"github.com/ylmrx/monyt/internal/metrics"
	"github.com/ylmrx/monyt/internal/migrator"
	"github.com/ylmrx/monyt/internal/notifyer"
	"github.com/ylmrx/monyt/internal/sender"
	"github.com/ylmrx/monyt/internal/topology"
	"github.com/ylmrx/monyt/pkg/probe"
	"github.com/ylmrx/monyt/pkg/strategies"
)

const (
	exitOK         = 0
	exitConfig     = 1
	exitNoPeer     = 2
	exitUnexpected = 3
)

const (
	eventsBuffer    = 64
	shutdownTimeout = 10 * time.Second
)

type Cloud interface {
	topology.Cloud
	migrator.RouteReplacer
}

// environment holds what the process needs from the machine it runs on.
type environment struct {
	identity func(ctx context.Context) (imds.Identity, error)
	cloud    func(ctx context.Context, region, profile string) (Cloud, error)
	stderr   io.Writer
}

func awsEnvironment() environment {
	return environment{
		identity: imds.New().Identity,
		cloud: func(ctx context.Context, region, profile string) (Cloud, error) {
			cfg, err := awsec2.LoadConfig(ctx, region, profile)
			if err != nil {
				return nil, err
			}
			return awsec2.New(cfg), nil
		},
		stderr: os.Stderr,
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], awsEnvironment())
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, env environment) int {
	if len(args) < 1 {
		fmt.Fprintln(env.stderr, "usage: monyt <config-file>")
		return exitConfig
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		fmt.Fprintln(env.stderr, err)
		return exitConfig
	}

	logCloser := logger.Setup(logger.Config{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSize:   cfg.Log.MaxSize,
		Retention: cfg.Log.Retention,
		Console:   cfg.Log.ConsoleEnabled(),
	})
	defer logCloser.Close()

	ident, err := env.identity(ctx)
	if err != nil {
		return configFailure(env, err, "failed to read instance metadata")
	}
	region := cfg.Region
	if region == "" {
		region = ident.Region
	}
	log.Info().Msgf("running on %s in %s (%s)", ident.InstanceID, ident.Zone, region)

	cloud, err := env.cloud(ctx, region, cfg.Profile)
	if err != nil {
		return configFailure(env, err, "failed to init cloud client")
	}

	resolver := topology.NewResolver(cloud, cfg.Tag, cfg.Pattern, log.Logger)
	local, remote, err := resolver.ResolvePeers(ctx, ident.InstanceID)
	switch {
	case errors.Is(err, topology.ErrNoPeer):
		configFailure(env, err, "no peer to monitor")
		return exitNoPeer
	case err != nil:
		return configFailure(env, err, "failed to resolve NAT peers")
	}
	log.Info().Msgf("local NAT %s, remote NAT %s", local, remote)

	mtr, metricsHandler, metricsClose := newMetrics(cfg, string(ident.InstanceID))
	defer metricsClose()

	var ready atomic.Bool
	serverClose := startProbeServer(cfg.Metrics.Listen, &ready, metricsHandler)
	defer serverClose()

	notifier := notifyer.NewNotifier(eventsBuffer)
	var publisher sender.EventPublisher
	if len(cfg.Events.Brokers) != 0 {
		kafka := sender.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, string(ident.InstanceID))
		defer kafka.Close()
		publisher = kafka
	}
	senderCtrl := sender.NewSenderController(notifier.GetEventChan(), publisher, cfg.Events.ResendDuration())
	senderCtx, senderCancel := context.WithCancel(context.Background())
	defer senderCancel()
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		senderCtrl.Run(senderCtx)
	}()

	prober, err := strategies.NewStrategy(
		ctx,
		probe.Settings{
			Strategy: probe.StrategyName(cfg.Ping.Strategy),
			Count:    cfg.Ping.Num,
			Timeout:  cfg.Ping.TimeoutDuration(),
			Port:     cfg.Ping.Port,
		},
		memberlist.Config{
			NodeName:            string(ident.InstanceID),
			Port:                cfg.Gossip.Port,
			GossipProbeInterval: time.Duration(cfg.Gossip.ProbeInterval) * time.Second,
			GossipProbeTimeout:  time.Duration(cfg.Gossip.ProbeTimeout) * time.Second,
		},
	)
	if err != nil {
		notifier.Close()
		<-senderDone
		return configFailure(env, err, "failed to create prober")
	}

	mig := migrator.New(
		cloud,
		log.Logger,
		migrator.WithAttempts(cfg.Migration.Attempts),
		migrator.WithCallsPerSecond(cfg.Migration.CallsPerSecond),
		migrator.WithMetrics(mtr),
	)
	monitor := failover.NewMonitor(
		local,
		remote,
		prober,
		resolver,
		mig,
		notifier,
		failover.Settings{
			Interval:                cfg.Ping.NextPingInterval(),
			Cooldown:                cfg.Ping.CooldownInterval(),
			FailuresBeforeFailover:  uint8(min(cfg.Ping.FailuresBeforeFailover, 255)),
			SuccessesBeforeRecovery: uint8(min(cfg.Ping.SuccessesBeforeRecovery, 255)),
		},
		failover.WithMetrics(mtr),
		failover.WithLogger(log.Logger),
	)

	if cfg.Migration.ClaimEnabled() {
		err = monitor.ClaimLocalRoutes(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("local route tables are not all claimed, monitoring anyway")
		}
	}

	ready.Store(true)
	runErr := monitor.Run(ctx)
	ready.Store(false)

	shutdown(prober, notifier, senderDone, senderCancel)

	switch {
	case runErr == nil:
		log.Warn().Msg("monitor stopped, bye")
		return exitOK
	case errors.Is(runErr, probe.ErrEnvironment):
		fmt.Fprintln(env.stderr, runErr)
		return exitConfig
	default:
		logger.Critical(&log.Logger).Err(runErr).Msg("monitor failed")
		return exitUnexpected
	}
}

// shutdown reaps outstanding probes and flushes queued events.
func shutdown(prober probe.Strategy, notifier *notifyer.ChanNotifyer, senderDone <-chan struct{}, senderCancel context.CancelFunc) {
	err := prober.Close()
	if err != nil {
		log.Error().Err(err).Msg("failed to close prober")
	}
	notifier.Close()
	select {
	case <-senderDone:
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("failover events still unsent on shutdown")
		senderCancel()
		<-senderDone
	}
}

func configFailure(env environment, err error, msg string) int {
	logger.Critical(&log.Logger).Err(err).Msg(msg)
	fmt.Fprintf(env.stderr, "%s: %v\n", msg, err)
	return exitConfig
}

func newMetrics(cfg *config.Config, node string) (metrics.Metrics, http.Handler, func()) {
	switch cfg.Metrics.Backend {
	case config.MetricsStatsd:
		s := metrics.NewStatsd(node, cfg.Metrics.StatsdAddr)
		return s, nil, func() { _ = s.Close() }
	case config.MetricsPrometheus:
		p := metrics.NewPrometheus(node)
		return p, p.Handler(), func() {}
	}
	return metrics.Noop{}, nil, func() {}
}

func startProbeServer(addr string, ready *atomic.Bool, metricsHandler http.Handler) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	srv := http.Server{
		Handler:           mux,
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start http server")
		}
	}()
	return func() {
		_ = srv.Close()
	}
}
