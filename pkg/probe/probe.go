package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ylmrx/monyt/pkg/nat"
)

type StrategyName string

const (
	ICMPStrategy   StrategyName = "icmp"
	TCPStrategy    StrategyName = "tcp"
	GossipStrategy StrategyName = "gossip"
)

// ErrEnvironment marks probe failures that are not about the peer at all:
// the probe utility is missing or the process may not run it.
var ErrEnvironment = errors.New("probe environment error")

// Strategy probes a target. An unreachable target is a failed outcome,
// not an error; errors are reserved for ErrEnvironment.
type Strategy interface {
	Probe(ctx context.Context, target net.IP) (nat.ProbeOutcome, error)
	Close() error
}

type Settings struct {
	Strategy StrategyName
	Count    int
	Timeout  time.Duration
	Port     uint16
}

func EnvironmentError(cause error) error {
	return fmt.Errorf("%w: %w", ErrEnvironment, cause)
}

func Failure(format string, args ...any) nat.ProbeOutcome {
	return nat.ProbeOutcome{
		Success:    false,
		Diagnostic: fmt.Sprintf(format, args...),
	}
}

func Success(format string, args ...any) nat.ProbeOutcome {
	return nat.ProbeOutcome{
		Success:    true,
		Diagnostic: fmt.Sprintf(format, args...),
	}
}
