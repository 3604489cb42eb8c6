package failover

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ylmrx/monyt/internal/logger"
	"github.com/ylmrx/monyt/internal/metrics"
	"github.com/ylmrx/monyt/internal/migrator"
	"github.com/ylmrx/monyt/internal/models"
	"github.com/ylmrx/monyt/pkg/nat"
	"github.com/ylmrx/monyt/pkg/probe"
)

var ErrUnexpected = errors.New("unexpected failure in monitor loop")

type RouteSource interface {
	Classify(ctx context.Context) (nat.RouteSet, error)
}

type Migrator interface {
	Migrate(ctx context.Context, tables []nat.RouteTable, target nat.InstanceID) migrator.Result
}

type Notifier interface {
	NotifyFailoverEvent(models.FailoverEvent)
}

type Settings struct {
	// Interval between probes while the peer answers, and right after a
	// transition.
	Interval time.Duration
	// Cooldown between probes of a peer known to be down.
	Cooldown                time.Duration
	FailuresBeforeFailover  uint8
	SuccessesBeforeRecovery uint8
}

type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(m *Monitor)

func WithMetrics(mtr metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mtr
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) {
		m.log = l.With().Str("component", "failover").Logger()
	}
}

func WithSleeper(s Sleeper) Option {
	return func(m *Monitor) {
		m.sleep = s
	}
}

type Monitor struct {
	local  nat.PeerEndpoint
	remote nat.PeerEndpoint

	prober   probe.Strategy
	routes   RouteSource
	migrator Migrator
	notifier Notifier
	metrics  metrics.Metrics

	settings Settings
	debounce debounce
	state    atomic.Int32
	current  nat.RouteSet
	loaded   bool

	sleep Sleeper
	log   zerolog.Logger
}

func NewMonitor(
	local, remote nat.PeerEndpoint,
	prober probe.Strategy,
	routes RouteSource,
	mig Migrator,
	notifier Notifier,
	settings Settings,
	opts ...Option,
) *Monitor {
	m := &Monitor{
		local:    local,
		remote:   remote,
		prober:   prober,
		routes:   routes,
		migrator: mig,
		notifier: notifier,
		metrics:  metrics.Noop{},
		settings: settings,
		debounce: newDebounce(settings.FailuresBeforeFailover, settings.SuccessesBeforeRecovery),
		sleep:    sleepCtx,
		log:      log.Logger.With().Str("component", "failover").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(nat.Healthy))
	return m
}

func (m *Monitor) State() nat.FailoverState {
	return nat.FailoverState(m.state.Load())
}

// Routes returns the last route classification the monitor read.
func (m *Monitor) Routes() nat.RouteSet {
	return m.current
}

func (m *Monitor) setState(state nat.FailoverState) {
	m.state.Store(int32(state))
	m.metrics.Gauge(metrics.State, int(state))
}

// Refresh reads the route classification again.
func (m *Monitor) Refresh(ctx context.Context) error {
	set, err := m.routes.Classify(ctx)
	if err != nil {
		return fmt.Errorf("failed to classify route tables: %w", err)
	}
	m.current = set
	m.loaded = true
	m.log.Info().Msgf("route tables: %s", set)
	return nil
}

func (m *Monitor) refreshOrCached(ctx context.Context) nat.RouteSet {
	err := m.Refresh(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("using the previous route classification")
	}
	return m.current
}

// ClaimLocalRoutes points the tables of the local zone back at the local
// instance. It runs once before the loop starts.
func (m *Monitor) ClaimLocalRoutes(ctx context.Context) error {
	err := m.Refresh(ctx)
	if err != nil {
		return err
	}
	var claim []nat.RouteTable
	for _, tbl := range m.current.ExpectedLocal {
		if !tbl.PointsAt(m.local.ID) {
			claim = append(claim, tbl)
		}
	}
	res := m.migrator.Migrate(ctx, claim, m.local.ID)
	m.notify(models.EventRoutesClaimed, res, "")
	if err := res.Err(); err != nil {
		logger.Critical(&m.log).Err(err).Msgf("failed to claim %d of %d local route tables", len(res.Failed()), len(res.Outcomes))
	}
	if len(claim) > 0 {
		m.refreshOrCached(ctx)
	}
	return res.Err()
}

// Step probes the peer once, applies the transition and returns how long to
// wait before the next probe.
func (m *Monitor) Step(ctx context.Context) (time.Duration, error) {
	started := time.Now()
	outcome, err := m.prober.Probe(ctx, m.remote.PrivateIP)
	m.metrics.Duration(metrics.ProbeDuration, time.Since(started))
	if err != nil {
		return 0, fmt.Errorf("failed to probe %s: %w", m.remote, err)
	}
	// a probe killed by shutdown says nothing about the peer
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	if outcome.Success {
		m.metrics.Increment(metrics.ProbeSuccess)
		return m.onSuccess(ctx, outcome), nil
	}
	m.metrics.Increment(metrics.ProbeFailure)
	return m.onFailure(ctx, outcome), nil
}

func (m *Monitor) onSuccess(_ context.Context, outcome nat.ProbeOutcome) time.Duration {
	recovered := m.debounce.success()
	if m.State() == nat.Healthy {
		m.log.Info().Msgf("Successful ping of %s", m.remote)
		m.log.Debug().Msg(outcome.Diagnostic)
		return m.settings.Interval
	}
	if !recovered {
		m.log.Info().Msgf(
			"%s answered, waiting for %d consecutive successes before recovery",
			m.remote, m.debounce.successBeforeRecovery,
		)
		return m.settings.Interval
	}

	m.debounce.reset()
	m.setState(nat.Healthy)
	m.metrics.Increment(metrics.Recovery)
	logger.Critical(&m.log).Msgf("The remote NAT %s is back online", m.remote)
	m.notify(models.EventPeerRecovered, migrator.Result{}, outcome.Diagnostic)
	return m.settings.Interval
}

func (m *Monitor) onFailure(ctx context.Context, outcome nat.ProbeOutcome) time.Duration {
	failed := m.debounce.failure()
	if m.State() == nat.Failed {
		logger.Critical(&m.log).Msgf("The remote NAT %s is still down: %s", m.remote, outcome.Diagnostic)
		m.notify(models.EventPeerStillDown, migrator.Result{}, outcome.Diagnostic)
		return m.settings.Cooldown
	}
	if !failed {
		m.log.Warn().Msgf(
			"Failed to ping %s (%d/%d before failover): %s",
			m.remote, m.debounce.curFailures, m.debounce.failuresBeforeFailover, outcome.Diagnostic,
		)
		return m.settings.Interval
	}

	logger.Critical(&m.log).Msgf("Failed to ping %s: %s", m.remote, outcome.Diagnostic)
	m.debounce.reset()
	m.setState(nat.Failed)
	m.metrics.Increment(metrics.Failover)

	res := m.takeOver(ctx)
	m.notify(models.EventPeerDown, res, outcome.Diagnostic)
	return m.settings.Interval
}

// takeOver moves every table pointing at the peer to the local instance.
func (m *Monitor) takeOver(ctx context.Context) migrator.Result {
	set := m.refreshOrCached(ctx)
	res := m.migrator.Migrate(ctx, set.Remote, m.local.ID)
	switch {
	case res.Err() != nil:
		for _, o := range res.Outcomes {
			if o.Err != nil {
				logger.Critical(&m.log).Err(o.Err).Msgf("route table %s still points at %s", o.Table, m.remote.ID)
			}
		}
		logger.Critical(&m.log).Msgf(
			"failed to migrate %d of %d route tables to %s",
			len(res.Failed()), len(res.Outcomes), m.local.ID,
		)
	case res.Note != "":
		m.log.Info().Msg(res.Note)
	default:
		m.log.Info().Msgf("migrated %d route tables to %s", len(res.Outcomes), m.local.ID)
	}
	if len(res.Outcomes) > 0 {
		m.refreshOrCached(ctx)
	}
	return res
}

func (m *Monitor) notify(eventType models.EventType, res migrator.Result, diagnostic string) {
	event := models.NewFailoverEvent(eventType, m.State().String(), string(m.local.ID), string(m.remote.ID))
	for _, id := range res.Succeeded() {
		event.Tables = append(event.Tables, string(id))
	}
	for _, id := range res.Failed() {
		event.FailedTables = append(event.FailedTables, string(id))
	}
	event.Diagnostic = diagnostic
	m.notifier.NotifyFailoverEvent(event)
}

// Run probes the peer until ctx is done. It returns nil on cancellation and
// an error for probe environment failures or a panic inside the loop.
func (m *Monitor) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Critical(&m.log).Msgf("%v: %v\n%s", ErrUnexpected, r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
		m.notify(models.EventMonitorStopped, migrator.Result{}, "")
	}()

	if !m.loaded {
		err := m.Refresh(ctx)
		if err != nil {
			return err
		}
	}
	m.setState(m.State())
	m.log.Info().Msgf("monitoring %s from %s", m.remote, m.local)

	for {
		wait, err := m.Step(ctx)
		if ctx.Err() != nil {
			m.log.Info().Msg("monitor stopped")
			return nil
		}
		if err != nil {
			logger.Critical(&m.log).Err(err).Msg("monitor cannot go on")
			return err
		}
		err = m.sleep(ctx, wait)
		if err != nil {
			m.log.Info().Msg("monitor stopped")
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
