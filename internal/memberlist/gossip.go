package memberlist

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/rs/zerolog/log"
)

type Config struct {
	NodeName            string
	Port                int
	GossipProbeInterval time.Duration
	GossipProbeTimeout  time.Duration
}

// MemberList is the two-member gossip cluster formed by a NAT pair.
type MemberList struct {
	list *memberlist.Memberlist
	port int
}

func New(ctx context.Context, cfg Config) (*MemberList, error) {
	const eventBufSize = 64

	events := make(chan memberlist.NodeEvent, eventBufSize)
	config := memberlist.DefaultLANConfig()
	config.Name = cfg.NodeName
	config.BindPort = cfg.Port
	config.AdvertisePort = cfg.Port
	config.LogOutput = io.Discard
	if cfg.GossipProbeInterval > 0 {
		config.ProbeInterval = cfg.GossipProbeInterval
	}
	if cfg.GossipProbeTimeout > 0 {
		config.ProbeTimeout = cfg.GossipProbeTimeout
	}
	config.Events = &memberlist.ChannelEventDelegate{
		Ch: events,
	}

	ml, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case mlEvent, opened := <-events:
				if !opened {
					return
				}
				switch mlEvent.Event {
				case memberlist.NodeJoin:
					log.Info().Msgf("gossip: node %s joined from %s", mlEvent.Node.Name, mlEvent.Node.Addr)
				case memberlist.NodeLeave:
					log.Warn().Msgf("gossip: node %s left, state=%d", mlEvent.Node.Name, mlEvent.Node.State)
				case memberlist.NodeUpdate:
					log.Debug().Msgf("gossip: node %s updated, state=%d", mlEvent.Node.Name, mlEvent.Node.State)
				}
			}
		}
	}()
	return &MemberList{
		list: ml,
		port: cfg.Port,
	}, nil
}

func (l *MemberList) Join(peer net.IP) error {
	_, err := l.list.Join([]string{net.JoinHostPort(peer.String(), strconv.Itoa(l.port))})
	if err != nil {
		return fmt.Errorf("failed to join memberlist: %w", err)
	}
	return nil
}

// Peer returns the member advertised from addr, if gossip knows about it.
func (l *MemberList) Peer(addr net.IP) (*memberlist.Node, bool) {
	for _, node := range l.list.Members() {
		if node.Name == l.list.LocalNode().Name {
			continue
		}
		if node.Addr.Equal(addr) {
			return node, true
		}
	}
	return nil, false
}

func (l *MemberList) GracefullyClose(timeout time.Duration) error {
	log.Warn().Msg("start graceful leaving from gossip cluster")

	err := l.list.Leave(timeout)
	if err != nil {
		return err
	}
	return l.list.Shutdown()
}
