package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyJSON = `{
  "profile": "nat",
  "tag": "role",
  "pattern": "aws-nat",
  "ping": {"num": 3, "timeout": 2, "nextping": 30},
  "log": {"log_level": "DEBUG", "logfile": "/var/log/monyt.log", "max_log_size": 5, "retention": 3}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monyt.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_LegacyJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyJSON))
	require.NoError(t, err)

	assert.Equal(t, "nat", cfg.Profile)
	assert.Equal(t, "role", cfg.Tag)
	assert.Equal(t, "aws-nat", cfg.Pattern)
	assert.Equal(t, 3, cfg.Ping.Num)
	assert.Equal(t, 2*time.Second, cfg.Ping.TimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.Ping.NextPingInterval())
	assert.Equal(t, 60*time.Second, cfg.Ping.CooldownInterval())
	assert.Equal(t, "icmp", cfg.Ping.Strategy)
	assert.Equal(t, 1, cfg.Ping.FailuresBeforeFailover)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Log.MaxSize)
	assert.True(t, cfg.Log.ConsoleEnabled())
	assert.True(t, cfg.Migration.ClaimEnabled())
	assert.Equal(t, uint(3), cfg.Migration.Attempts)
	assert.Equal(t, MetricsNone, cfg.Metrics.Backend)
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
region: eu-west-1
tag: role
pattern: aws-nat
ping:
  cooldown: 600
  strategy: tcp
  port: 22
  failures_before_failover: 2
migration:
  claim_on_start: false
metrics:
  backend: prometheus
events:
  brokers: [kafka-1:9092, kafka-2:9092]
`))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 600*time.Second, cfg.Ping.CooldownInterval())
	assert.Equal(t, uint16(22), cfg.Ping.Port)
	assert.Equal(t, 2, cfg.Ping.FailuresBeforeFailover)
	assert.False(t, cfg.Migration.ClaimEnabled())
	assert.Equal(t, MetricsPrometheus, cfg.Metrics.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "monyt.failover", cfg.Events.Topic)
	assert.Equal(t, DefaultLogFile, cfg.Log.File)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONYT_LOG_LEVEL", "ERROR")
	t.Setenv("MONYT_REGION", "us-east-2")

	cfg, err := Load(writeConfig(t, legacyJSON))
	require.NoError(t, err)

	assert.Equal(t, "ERROR", cfg.Log.Level)
	assert.Equal(t, "us-east-2", cfg.Region)
	assert.Equal(t, "nat", cfg.Profile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "garbage", body: "{not json", want: "invalid config"},
		{name: "no tag", body: `{"pattern": "aws-nat"}`, want: "tag is required"},
		{name: "tcp without port", body: `{"tag": "role", "pattern": "nat", "ping": {"strategy": "tcp"}}`, want: "ping.port"},
		{name: "unknown strategy", body: `{"tag": "role", "pattern": "nat", "ping": {"strategy": "snmp"}}`, want: "unknown ping.strategy"},
		{name: "unknown metrics", body: `{"tag": "role", "pattern": "nat", "metrics": {"backend": "graphite"}}`, want: "unknown metrics.backend"},
		{name: "negative interval", body: `{"tag": "role", "pattern": "nat", "ping": {"nextping": -1}}`, want: "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
