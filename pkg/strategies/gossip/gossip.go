package gossip

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/ylmrx/monyt/pkg/nat"
	"github.com/ylmrx/monyt/pkg/probe"
)

const leaveTimeout = time.Second

type Membership interface {
	Join(peer net.IP) error
	Peer(addr net.IP) (*memberlist.Node, bool)
	GracefullyClose(timeout time.Duration) error
}

// Strategy reads the peer's liveness from the gossip cluster instead of
// sending probes itself; memberlist does its own probing and suspicion.
type Strategy struct {
	members Membership
}

func NewStrategy(members Membership) *Strategy {
	return &Strategy{
		members: members,
	}
}

func (s *Strategy) Probe(_ context.Context, target net.IP) (nat.ProbeOutcome, error) {
	node, ok := s.members.Peer(target)
	if !ok {
		err := s.members.Join(target)
		if err != nil {
			return probe.Failure("peer %s is not reachable over gossip: %v", target, err), nil
		}
		node, ok = s.members.Peer(target)
		if !ok {
			return probe.Failure("peer %s joined but is not a member", target), nil
		}
	}
	if node.State != memberlist.StateAlive {
		return probe.Failure("peer %s (%s) gossip state=%d", node.Name, target, node.State), nil
	}
	return probe.Success("peer %s (%s) alive in gossip cluster", node.Name, target), nil
}

func (s *Strategy) Close() error {
	return s.members.GracefullyClose(leaveTimeout)
}
