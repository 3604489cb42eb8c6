package memcloud

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ylmrx/monyt/internal/topology"
	"github.com/ylmrx/monyt/pkg/nat"
)

type injectedFailure struct {
	err   error
	times int
}

type routeEntry struct {
	mu    sync.Mutex
	table topology.RouteTable
}

// Cloud is an in-memory VPC: instances, subnets and route tables behind the
// same interfaces the EC2 backend implements.
type Cloud struct {
	mu           *sync.Mutex
	instances    map[nat.InstanceID]topology.Instance
	subnets      map[string]topology.Subnet
	routeTables  map[nat.RouteTableID]*routeEntry
	failures     map[nat.RouteTableID]*injectedFailure
	replaceCalls int
}

func New() *Cloud {
	return &Cloud{
		mu:          &sync.Mutex{},
		instances:   make(map[nat.InstanceID]topology.Instance),
		subnets:     make(map[string]topology.Subnet),
		routeTables: make(map[nat.RouteTableID]*routeEntry),
		failures:    make(map[nat.RouteTableID]*injectedFailure),
	}
}

func (c *Cloud) AddInstance(inst topology.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[inst.ID] = inst
}

func (c *Cloud) AddSubnet(sub topology.Subnet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subnets[sub.ID] = sub
}

// AddRouteTable registers a table whose default route targets target;
// an empty target means the table has no instance default route.
func (c *Cloud) AddRouteTable(id nat.RouteTableID, target nat.InstanceID, subnetIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routeTables[id] = &routeEntry{
		table: topology.RouteTable{
			ID:                 id,
			HasInstanceDefault: target != "",
			DefaultTarget:      target,
			SubnetIDs:          subnetIDs,
		},
	}
}

// FailReplace makes the next times replace calls on id fail with err.
func (c *Cloud) FailReplace(id nat.RouteTableID, err error, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[id] = &injectedFailure{err: err, times: times}
}

func (c *Cloud) ReplaceCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaceCalls
}

func (c *Cloud) NextHop(id nat.RouteTableID) nat.InstanceID {
	c.mu.Lock()
	entry := c.routeTables[id]
	c.mu.Unlock()
	if entry == nil {
		return ""
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.table.DefaultTarget
}

// PointingAt lists the tables whose default route targets id.
func (c *Cloud) PointingAt(id nat.InstanceID) []nat.RouteTableID {
	c.mu.Lock()
	ids := slices.Sorted(maps.Keys(c.routeTables))
	c.mu.Unlock()

	var result []nat.RouteTableID
	for _, tableID := range ids {
		if c.NextHop(tableID) == id {
			result = append(result, tableID)
		}
	}
	return result
}

func (c *Cloud) Instance(_ context.Context, id nat.InstanceID) (topology.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[id]
	if !ok {
		return topology.Instance{}, fmt.Errorf("InvalidInstanceID.NotFound: %s", id)
	}
	return inst, nil
}

func (c *Cloud) Instances(_ context.Context, vpcID string) ([]topology.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]topology.Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		if inst.VpcID == vpcID {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (c *Cloud) Subnets(_ context.Context, _ string) ([]topology.Subnet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Collect(maps.Values(c.subnets)), nil
}

func (c *Cloud) RouteTables(_ context.Context, _ string) ([]topology.RouteTable, error) {
	c.mu.Lock()
	ids := slices.Sorted(maps.Keys(c.routeTables))
	entries := make([]*routeEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, c.routeTables[id])
	}
	c.mu.Unlock()

	result := make([]topology.RouteTable, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		tbl := entry.table
		tbl.SubnetIDs = slices.Clone(entry.table.SubnetIDs)
		entry.mu.Unlock()
		result = append(result, tbl)
	}
	return result, nil
}

func (c *Cloud) ReplaceDefaultRoute(_ context.Context, id nat.RouteTableID, target nat.InstanceID) error {
	c.mu.Lock()
	c.replaceCalls++
	entry := c.routeTables[id]
	if failure := c.failures[id]; failure != nil && failure.times > 0 {
		failure.times--
		c.mu.Unlock()
		return failure.err
	}
	c.mu.Unlock()

	if entry == nil {
		return fmt.Errorf("InvalidRouteTableID.NotFound: %s", id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.table.HasInstanceDefault {
		return fmt.Errorf("InvalidRoute.NotFound: no route with destination %s in %s", nat.DefaultRouteCIDR, id)
	}
	entry.table.DefaultTarget = target
	return nil
}

// Demo is a NAT pair in two zones: each zone has a private subnet whose
// table points at its zone's NAT, plus a public subnet with no NAT route.
func Demo() *Cloud {
	c := New()
	c.AddInstance(topology.Instance{
		ID: "i-0aaa", VpcID: "vpc-demo", Zone: "eu-west-1a", State: "running",
		PrivateIP: []byte{10, 0, 1, 10}, Tags: map[string]string{"role": "aws-nat"},
	})
	c.AddInstance(topology.Instance{
		ID: "i-0bbb", VpcID: "vpc-demo", Zone: "eu-west-1b", State: "running",
		PrivateIP: []byte{10, 0, 2, 10}, Tags: map[string]string{"role": "aws-nat"},
	})
	c.AddInstance(topology.Instance{
		ID: "i-0ccc", VpcID: "vpc-demo", Zone: "eu-west-1a", State: "running",
		PrivateIP: []byte{10, 0, 1, 20}, Tags: map[string]string{"role": "web"},
	})
	c.AddSubnet(topology.Subnet{ID: "subnet-a-private", Zone: "eu-west-1a"})
	c.AddSubnet(topology.Subnet{ID: "subnet-b-private", Zone: "eu-west-1b"})
	c.AddSubnet(topology.Subnet{ID: "subnet-a-public", Zone: "eu-west-1a"})
	c.AddRouteTable("rtb-a", "i-0aaa", "subnet-a-private")
	c.AddRouteTable("rtb-b", "i-0bbb", "subnet-b-private")
	c.AddRouteTable("rtb-public", "", "subnet-a-public")
	return c
}
