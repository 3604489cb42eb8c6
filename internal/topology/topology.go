package topology

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ylmrx/monyt/pkg/nat"
)

var (
	ErrRoleTagMissing = errors.New("local instance does not carry the NAT role tag")
	ErrNoPeer         = errors.New("no peer instance carries the NAT role tag")
)

const (
	StateShuttingDown = "shutting-down"
	StateTerminated   = "terminated"
)

type Instance struct {
	ID        nat.InstanceID
	VpcID     string
	PrivateIP net.IP
	Zone      string
	State     string
	Tags      map[string]string
}

func (i Instance) Endpoint() nat.PeerEndpoint {
	return nat.PeerEndpoint{
		ID:        i.ID,
		PrivateIP: i.PrivateIP,
		Zone:      i.Zone,
	}
}

type Subnet struct {
	ID   string
	Zone string
}

type RouteTable struct {
	ID nat.RouteTableID
	// HasInstanceDefault is set when 0.0.0.0/0 goes through an instance.
	HasInstanceDefault bool
	DefaultTarget      nat.InstanceID
	SubnetIDs          []string
}

type Cloud interface {
	Instance(ctx context.Context, id nat.InstanceID) (Instance, error)
	Instances(ctx context.Context, vpcID string) ([]Instance, error)
	RouteTables(ctx context.Context, vpcID string) ([]RouteTable, error)
	Subnets(ctx context.Context, vpcID string) ([]Subnet, error)
}

type Resolver struct {
	cloud   Cloud
	tag     string
	pattern string

	vpcID  string
	local  nat.PeerEndpoint
	remote nat.PeerEndpoint

	log zerolog.Logger
}

func NewResolver(cloud Cloud, tag, pattern string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		cloud:   cloud,
		tag:     tag,
		pattern: pattern,
		log:     logger.With().Str("component", "topology").Logger(),
	}
}

func HasRole(tags map[string]string, tag, pattern string) bool {
	value, ok := tags[tag]
	return ok && strings.Contains(value, pattern)
}

// ResolvePeers checks the local instance carries the role and picks its peer:
// the first other live instance of the VPC carrying the role, by instance id.
func (r *Resolver) ResolvePeers(ctx context.Context, localID nat.InstanceID) (nat.PeerEndpoint, nat.PeerEndpoint, error) {
	local, err := r.cloud.Instance(ctx, localID)
	if err != nil {
		return nat.PeerEndpoint{}, nat.PeerEndpoint{}, fmt.Errorf("failed to describe local instance %s: %w", localID, err)
	}
	if !HasRole(local.Tags, r.tag, r.pattern) {
		return nat.PeerEndpoint{}, nat.PeerEndpoint{}, fmt.Errorf(
			"%w: %s has %s=%q, want a value containing %q",
			ErrRoleTagMissing, localID, r.tag, local.Tags[r.tag], r.pattern,
		)
	}

	instances, err := r.cloud.Instances(ctx, local.VpcID)
	if err != nil {
		return nat.PeerEndpoint{}, nat.PeerEndpoint{}, fmt.Errorf("failed to list instances of %s: %w", local.VpcID, err)
	}
	slices.SortFunc(instances, func(a, b Instance) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})

	var peer *Instance
	for i := range instances {
		candidate := &instances[i]
		if candidate.ID == local.ID {
			continue
		}
		if candidate.State == StateTerminated || candidate.State == StateShuttingDown {
			continue
		}
		if candidate.PrivateIP == nil || !HasRole(candidate.Tags, r.tag, r.pattern) {
			continue
		}
		r.log.Info().Msgf("%s is a good peer candidate", candidate.ID)
		peer = candidate
		break
	}
	if peer == nil {
		return nat.PeerEndpoint{}, nat.PeerEndpoint{}, fmt.Errorf("%w in %s", ErrNoPeer, local.VpcID)
	}

	r.vpcID = local.VpcID
	r.local = local.Endpoint()
	r.remote = peer.Endpoint()
	return r.local, r.remote, nil
}

// Classify reads the VPC route tables and sorts them by default route target.
func (r *Resolver) Classify(ctx context.Context) (nat.RouteSet, error) {
	if r.vpcID == "" {
		return nat.RouteSet{}, fmt.Errorf("peers are not resolved yet")
	}
	tables, err := r.cloud.RouteTables(ctx, r.vpcID)
	if err != nil {
		return nat.RouteSet{}, fmt.Errorf("failed to list route tables of %s: %w", r.vpcID, err)
	}
	subnets, err := r.cloud.Subnets(ctx, r.vpcID)
	if err != nil {
		return nat.RouteSet{}, fmt.Errorf("failed to list subnets of %s: %w", r.vpcID, err)
	}
	set := Classify(tables, subnets, r.local, r.remote)
	r.log.Debug().Msgf("route classification: %s", set)
	return set, nil
}

func Classify(tables []RouteTable, subnets []Subnet, local, remote nat.PeerEndpoint) nat.RouteSet {
	localSubnets := make(map[string]struct{}, len(subnets))
	for _, sub := range subnets {
		if sub.Zone == local.Zone {
			localSubnets[sub.ID] = struct{}{}
		}
	}

	set := nat.RouteSet{}
	for _, tbl := range tables {
		if !tbl.HasInstanceDefault {
			continue
		}
		rt := nat.RouteTable{ID: tbl.ID, NextHop: tbl.DefaultTarget}
		switch tbl.DefaultTarget {
		case local.ID:
			set.Local = append(set.Local, rt)
		case remote.ID:
			set.Remote = append(set.Remote, rt)
		}
		for _, subnetID := range tbl.SubnetIDs {
			if _, ok := localSubnets[subnetID]; ok {
				set.ExpectedLocal = append(set.ExpectedLocal, rt)
				break
			}
		}
	}
	return set
}
