package icmp

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylmrx/monyt/pkg/probe"
)

var target = net.IPv4(10, 0, 1, 10)

func writeScript(t *testing.T, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeping")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), mode))
	return path
}

func TestStrategy_Args(t *testing.T) {
	s, err := NewStrategy(&Settings{Binary: "true", Count: 3, Timeout: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, []string{"-c", "3", "-W", "2", "10.0.1.10"}, s.args(target))
}

func TestStrategy_ProbeSuccess(t *testing.T) {
	bin := writeScript(t, `echo "3 packets transmitted, 3 received"`, 0o755)
	s, err := NewStrategy(&Settings{Binary: bin, Count: 3, Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	outcome, err := s.Probe(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.Diagnostic, "3 received")
}

func TestStrategy_ProbeFailureIsNotAnError(t *testing.T) {
	bin := writeScript(t, `echo "100% packet loss"; exit 1`, 0o755)
	s, err := NewStrategy(&Settings{Binary: bin, Count: 1, Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	outcome, err := s.Probe(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Diagnostic, "exited with 1")
	assert.Contains(t, outcome.Diagnostic, "100% packet loss")
}

func TestNewStrategy_MissingBinary(t *testing.T) {
	_, err := NewStrategy(&Settings{Binary: "monyt-no-such-ping-binary"})
	require.Error(t, err)
	assert.ErrorIs(t, err, probe.ErrEnvironment)
}

func TestNewStrategy_NotExecutable(t *testing.T) {
	bin := writeScript(t, "exit 0", 0o644)
	_, err := NewStrategy(&Settings{Binary: bin})
	require.Error(t, err)
	assert.ErrorIs(t, err, probe.ErrEnvironment)
}

func TestStrategy_ProbeInterruptedByContext(t *testing.T) {
	bin := writeScript(t, "exec sleep 30", 0o755)
	s, err := NewStrategy(&Settings{Binary: bin, Count: 1, Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	outcome, err := s.Probe(ctx, target)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Diagnostic, "interrupted")
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestStrategy_CloseReapsRunningChildren(t *testing.T) {
	bin := writeScript(t, "exec sleep 30", 0o755)
	s, err := NewStrategy(&Settings{Binary: bin, Count: 5, Timeout: 5 * time.Second})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Probe(context.Background(), target)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.running) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("probe did not return after close")
	}
	assert.Empty(t, s.running)

	outcome, err := s.Probe(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestStrategy_ProbePermissionDeniedIsEnvironmentError(t *testing.T) {
	bin := writeScript(t, `echo "ping: socket: Operation not permitted" >&2; exit 2`, 0o755)
	s, err := NewStrategy(&Settings{Binary: bin, Count: 1, Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Probe(context.Background(), target)
	require.Error(t, err)
	assert.ErrorIs(t, err, probe.ErrEnvironment)
	assert.ErrorContains(t, err, "Operation not permitted")
}

func TestStrategy_ProbeOtherExitTwoIsFailure(t *testing.T) {
	bin := writeScript(t, `echo "ping: connect: Network is unreachable" >&2; exit 2`, 0o755)
	s, err := NewStrategy(&Settings{Binary: bin, Count: 1, Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()

	outcome, err := s.Probe(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Diagnostic, "exited with 2")
}

func TestNewStrategy_SelfCheck(t *testing.T) {
	denied := writeScript(t, `echo "ping: socket: Permission denied" >&2; exit 2`, 0o755)
	_, err := NewStrategy(&Settings{Binary: denied, SelfCheck: true})
	assert.ErrorIs(t, err, probe.ErrEnvironment)

	silent := writeScript(t, `exit 1`, 0o755)
	s, err := NewStrategy(&Settings{Binary: silent, SelfCheck: true})
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	working := writeScript(t, `echo "1 packets transmitted, 1 received"`, 0o755)
	s, err = NewStrategy(&Settings{Binary: working, SelfCheck: true})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
