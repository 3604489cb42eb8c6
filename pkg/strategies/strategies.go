package strategies

import (
	"context"
	"fmt"

	"github.com/ylmrx/monyt/internal/memberlist"
	"github.com/ylmrx/monyt/pkg/probe"
	"github.com/ylmrx/monyt/pkg/strategies/gossip"
	"github.com/ylmrx/monyt/pkg/strategies/icmp"
	"github.com/ylmrx/monyt/pkg/strategies/tcpconn"
)

func NewStrategy(ctx context.Context, settings probe.Settings, gossipCfg memberlist.Config) (probe.Strategy, error) {
	switch settings.Strategy {
	case probe.ICMPStrategy, "":
		return icmp.NewStrategy(&icmp.Settings{
			Count:     settings.Count,
			Timeout:   settings.Timeout,
			SelfCheck: true,
		})
	case probe.TCPStrategy:
		return tcpconn.NewStrategy(&tcpconn.Settings{
			Port:    settings.Port,
			Count:   settings.Count,
			Timeout: settings.Timeout,
		})
	case probe.GossipStrategy:
		members, err := memberlist.New(ctx, gossipCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to start gossip prober: %w", err)
		}
		return gossip.NewStrategy(members), nil
	}
	return nil, fmt.Errorf("unknown probe strategy: %q", settings.Strategy)
}
