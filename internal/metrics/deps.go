package metrics

import "time"

type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}

const (
	ProbeSuccess        = "probe.success"
	ProbeFailure        = "probe.failure"
	ProbeDuration       = "probe.duration"
	Failover            = "failover"
	Recovery            = "recovery"
	MigrationDuration   = "migration.duration"
	MigrationTableOK    = "migration.table.ok"
	MigrationTableError = "migration.table.error"
	State               = "state"
)

type Noop struct{}

func (Noop) Increment(string)               {}
func (Noop) Duration(string, time.Duration) {}
func (Noop) Gauge(string, int)              {}
