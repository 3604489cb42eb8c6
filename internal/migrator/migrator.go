package migrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/ylmrx/monyt/internal/metrics"
	"github.com/ylmrx/monyt/pkg/nat"
)

const NoActionNeeded = "the route list is empty, no action needed"

type RouteReplacer interface {
	ReplaceDefaultRoute(ctx context.Context, table nat.RouteTableID, target nat.InstanceID) error
}

type RouteOutcome struct {
	Table nat.RouteTableID
	Err   error
}

type Result struct {
	Target   nat.InstanceID
	Outcomes []RouteOutcome
	Note     string
}

// Failed lists the tables whose update was rejected.
func (r Result) Failed() []nat.RouteTableID {
	var failed []nat.RouteTableID
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o.Table)
		}
	}
	return failed
}

func (r Result) Succeeded() []nat.RouteTableID {
	var done []nat.RouteTableID
	for _, o := range r.Outcomes {
		if o.Err == nil {
			done = append(done, o.Table)
		}
	}
	return done
}

// Err aggregates every per-table failure, nil when all tables were updated.
func (r Result) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", o.Table, o.Err))
		}
	}
	return err
}

type Option func(o *option)

type option struct {
	attempts       uint
	delay          time.Duration
	callsPerSecond float64
	metrics        metrics.Metrics
}

func WithAttempts(attempts uint) Option {
	return func(o *option) {
		o.attempts = attempts
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(o *option) {
		o.delay = delay
	}
}

func WithCallsPerSecond(perSecond float64) Option {
	return func(o *option) {
		o.callsPerSecond = perSecond
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(o *option) {
		o.metrics = m
	}
}

type Migrator struct {
	replacer RouteReplacer
	attempts uint
	delay    time.Duration
	limiter  *rate.Limiter
	metrics  metrics.Metrics
	log      zerolog.Logger
}

func New(replacer RouteReplacer, logger zerolog.Logger, opts ...Option) *Migrator {
	o := option{
		attempts:       3,
		delay:          500 * time.Millisecond,
		callsPerSecond: 5,
		metrics:        metrics.Noop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	limit := rate.Inf
	if o.callsPerSecond > 0 {
		limit = rate.Limit(o.callsPerSecond)
	}
	return &Migrator{
		replacer: replacer,
		attempts: max(o.attempts, 1),
		delay:    o.delay,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  o.metrics,
		log:      logger.With().Str("component", "migrator").Logger(),
	}
}

// Migrate points the default route of every table at target. It keeps going
// after a failed table and reports one outcome per distinct table.
func (m *Migrator) Migrate(ctx context.Context, tables []nat.RouteTable, target nat.InstanceID) Result {
	result := Result{Target: target}
	if len(tables) == 0 {
		m.log.Info().Msg(NoActionNeeded)
		result.Note = NoActionNeeded
		return result
	}

	ids := make([]nat.RouteTableID, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	m.log.Info().Msgf("switching %d route tables to %s", len(ids), target)
	started := time.Now()
	for _, id := range ids {
		m.log.Info().Msgf("treating route table: %s", id)
		err := m.replace(ctx, id, target)
		if err != nil {
			m.metrics.Increment(metrics.MigrationTableError)
			m.log.Error().Err(err).Msgf("failed to point %s at %s", id, target)
		} else {
			m.metrics.Increment(metrics.MigrationTableOK)
		}
		result.Outcomes = append(result.Outcomes, RouteOutcome{Table: id, Err: err})
	}
	m.metrics.Duration(metrics.MigrationDuration, time.Since(started))
	return result
}

func (m *Migrator) replace(ctx context.Context, id nat.RouteTableID, target nat.InstanceID) error {
	return retry.Do(
		func() error {
			err := m.limiter.Wait(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			return m.replacer.ReplaceDefaultRoute(ctx, id, target)
		},
		retry.Context(ctx),
		retry.Attempts(m.attempts),
		retry.Delay(m.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			m.log.Warn().Err(err).Msgf("failed to replace default route of %s, attempt: %d", id, attempt+1)
		}),
	)
}
