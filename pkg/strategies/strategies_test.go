package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylmrx/monyt/internal/memberlist"
	"github.com/ylmrx/monyt/pkg/probe"
	"github.com/ylmrx/monyt/pkg/strategies/tcpconn"
)

func TestNewStrategy(t *testing.T) {
	ctx := context.Background()

	s, err := NewStrategy(ctx, probe.Settings{Strategy: probe.TCPStrategy, Port: 22, Count: 1, Timeout: time.Second}, memberlist.Config{})
	require.NoError(t, err)
	assert.IsType(t, &tcpconn.Strategy{}, s)

	_, err = NewStrategy(ctx, probe.Settings{Strategy: probe.TCPStrategy}, memberlist.Config{})
	assert.Error(t, err)

	_, err = NewStrategy(ctx, probe.Settings{Strategy: "carrier-pigeon"}, memberlist.Config{})
	assert.ErrorContains(t, err, "unknown probe strategy")

	_, err = NewStrategy(ctx, probe.Settings{Strategy: "mock"}, memberlist.Config{})
	assert.ErrorContains(t, err, "unknown probe strategy")
}
