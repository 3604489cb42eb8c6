package mockprobe

import (
	"context"
	"net"
	"sync"

	"github.com/ylmrx/monyt/pkg/nat"
	"github.com/ylmrx/monyt/pkg/probe"
)

type Settings struct {
	// Script is replayed in order; the last entry repeats once exhausted.
	Script []bool
	Err    error
}

type Strategy struct {
	mu      sync.Mutex
	script  []bool
	err     error
	calls   int
	targets []string
	closed  bool
}

func NewStrategy(settings *Settings) *Strategy {
	return &Strategy{
		script: settings.Script,
		err:    settings.Err,
	}
}

func (s *Strategy) Probe(_ context.Context, target net.IP) (nat.ProbeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.targets = append(s.targets, target.String())
	if s.err != nil {
		return nat.ProbeOutcome{}, s.err
	}
	if len(s.script) == 0 {
		return probe.Success("mock probe %s", target), nil
	}
	idx := min(s.calls, len(s.script)) - 1
	if s.script[idx] {
		return probe.Success("mock probe %s: reply", target), nil
	}
	return probe.Failure("mock probe %s: no reply", target), nil
}

func (s *Strategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Strategy) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

func (s *Strategy) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Strategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
