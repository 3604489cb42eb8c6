package tcpconn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ylmrx/monyt/pkg/nat"
	"github.com/ylmrx/monyt/pkg/probe"
)

const tcpNetwork = "tcp4"

type Settings struct {
	Port    uint16
	Count   int
	Timeout time.Duration
}

// Strategy dials the peer up to Count times; one accepted connection is enough.
type Strategy struct {
	port   string
	count  int
	dialer net.Dialer
}

func NewStrategy(settings *Settings) (*Strategy, error) {
	if settings.Port == 0 {
		return nil, fmt.Errorf("invalid tcp probe port: zero")
	}
	count := settings.Count
	if count <= 0 {
		count = 1
	}
	timeout := settings.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	return &Strategy{
		port:  strconv.Itoa(int(settings.Port)),
		count: count,
		dialer: net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1,
		},
	}, nil
}

func (s *Strategy) Probe(ctx context.Context, target net.IP) (nat.ProbeOutcome, error) {
	addr := net.JoinHostPort(target.String(), s.port)
	failures := make([]string, 0, s.count)
	for attempt := 1; attempt <= s.count; attempt++ {
		conn, err := s.dialer.DialContext(ctx, tcpNetwork, addr)
		if err == nil {
			_ = conn.Close()
			return probe.Success("connected to %s on attempt %d/%d", addr, attempt, s.count), nil
		}
		failures = append(failures, err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	return probe.Failure("%s unreachable: %s", addr, strings.Join(failures, "; ")), nil
}

func (s *Strategy) Close() error {
	return nil
}
