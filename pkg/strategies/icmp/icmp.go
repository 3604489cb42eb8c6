package icmp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ylmrx/monyt/pkg/nat"
	"github.com/ylmrx/monyt/pkg/probe"
)

const (
	defaultBinary = "ping"
	// ping exits with 1 when no reply came back and 2 on any other error
	exitOtherError = 2
	selfCheckHost  = "127.0.0.1"
	// how long a killed child may keep its pipes open before Wait gives up on them
	waitDelay = time.Second
)

var errClosed = errors.New("icmp prober closed")

var permissionMessages = []string{
	"operation not permitted",
	"permission denied",
}

type Settings struct {
	Binary  string
	Count   int
	Timeout time.Duration
	// SelfCheck pings the loopback once at construction so missing
	// privileges fail startup instead of the first probe.
	SelfCheck bool
}

// Strategy runs the system ping utility as a child process. Every child is
// waited for; Close kills whatever is still running and reaps it.
type Strategy struct {
	binary  string
	count   int
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	running map[*exec.Cmd]struct{}
	reaped  sync.WaitGroup
}

func NewStrategy(settings *Settings) (*Strategy, error) {
	binary := settings.Binary
	if binary == "" {
		binary = defaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, probe.EnvironmentError(fmt.Errorf("failed to find %s: %w", binary, err))
	}
	count := settings.Count
	if count <= 0 {
		count = 1
	}
	timeout := settings.Timeout
	if timeout < time.Second {
		timeout = time.Second
	}
	s := &Strategy{
		binary:  path,
		count:   count,
		timeout: timeout,
		running: make(map[*exec.Cmd]struct{}),
	}
	if settings.SelfCheck {
		err = s.selfCheck()
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Strategy) selfCheck() error {
	checker := &Strategy{
		binary:  s.binary,
		count:   1,
		timeout: time.Second,
		running: make(map[*exec.Cmd]struct{}),
	}
	outcome, err := checker.Probe(context.Background(), net.ParseIP(selfCheckHost))
	if err != nil {
		return err
	}
	if !outcome.Success {
		log.Warn().Msgf("%s does not answer %s: %s", s.binary, selfCheckHost, outcome.Diagnostic)
	}
	return nil
}

func isPermissionError(output string) bool {
	output = strings.ToLower(output)
	for _, msg := range permissionMessages {
		if strings.Contains(output, msg) {
			return true
		}
	}
	return false
}

func (s *Strategy) args(target net.IP) []string {
	return []string{
		"-c", strconv.Itoa(s.count),
		"-W", strconv.Itoa(int(s.timeout / time.Second)),
		target.String(),
	}
}

// deadline bounds the whole child run: ping sends one packet per second and
// waits up to timeout for each reply.
func (s *Strategy) deadline() time.Duration {
	return time.Duration(s.count)*(time.Second+s.timeout) + time.Second
}

func (s *Strategy) Probe(ctx context.Context, target net.IP) (nat.ProbeOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadline())
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, s.args(target)...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	err := s.start(cmd)
	if err != nil {
		if errors.Is(err, errClosed) {
			return probe.Failure("prober closed"), nil
		}
		return nat.ProbeOutcome{}, probe.EnvironmentError(fmt.Errorf("failed to start %s: %w", s.binary, err))
	}
	defer s.release(cmd)

	err = cmd.Wait()
	diagnostic := strings.TrimSpace(out.String())
	if err == nil {
		return probe.Success("%s", diagnostic), nil
	}
	if ctx.Err() != nil {
		return probe.Failure("ping %s interrupted: %v: %s", target, ctx.Err(), diagnostic), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == exitOtherError && isPermissionError(diagnostic) {
			return nat.ProbeOutcome{}, probe.EnvironmentError(fmt.Errorf("%s may not send echo requests: %s", s.binary, diagnostic))
		}
		return probe.Failure("ping %s exited with %d: %s", target, exitErr.ExitCode(), diagnostic), nil
	}
	return probe.Failure("ping %s failed: %v: %s", target, err, diagnostic), nil
}

func (s *Strategy) start(cmd *exec.Cmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	err := cmd.Start()
	if err != nil {
		return err
	}
	s.running[cmd] = struct{}{}
	s.reaped.Add(1)
	return nil
}

func (s *Strategy) release(cmd *exec.Cmd) {
	s.mu.Lock()
	delete(s.running, cmd)
	s.mu.Unlock()
	s.reaped.Done()
}

func (s *Strategy) Close() error {
	s.mu.Lock()
	s.closed = true
	for cmd := range s.running {
		log.Info().Msgf("shutting down probe child pid=%d", cmd.Process.Pid)
		_ = cmd.Process.Kill()
	}
	s.mu.Unlock()

	s.reaped.Wait()
	return nil
}
