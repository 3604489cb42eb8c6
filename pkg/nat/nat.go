package nat

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

const DefaultRouteCIDR = "0.0.0.0/0"

type InstanceID string

func (id InstanceID) String() string {
	return string(id)
}

type RouteTableID string

func (id RouteTableID) String() string {
	return string(id)
}

type PeerEndpoint struct {
	ID        InstanceID
	PrivateIP net.IP
	Zone      string
}

func (p PeerEndpoint) String() string {
	return fmt.Sprintf("%s(%s)", p.ID, p.PrivateIP)
}

// RouteTable is a route table whose default route targets NextHop.
// NextHop is empty when the default route does not go through an instance.
type RouteTable struct {
	ID      RouteTableID
	NextHop InstanceID
}

func (t RouteTable) PointsAt(id InstanceID) bool {
	return id != "" && t.NextHop == id
}

type RouteSet struct {
	// Local tables have their default route on the local instance.
	Local []RouteTable
	// Remote tables have their default route on the peer.
	Remote []RouteTable
	// ExpectedLocal tables are associated with subnets of the local zone.
	ExpectedLocal []RouteTable
}

func (s RouteSet) String() string {
	return fmt.Sprintf(
		"{local=[%s], remote=[%s], expected_local=[%s]}",
		joinIDs(s.Local),
		joinIDs(s.Remote),
		joinIDs(s.ExpectedLocal),
	)
}

// Disjoint reports whether no table is both in Local and in Remote.
func (s RouteSet) Disjoint() bool {
	for _, l := range s.Local {
		if slices.ContainsFunc(s.Remote, func(r RouteTable) bool { return r.ID == l.ID }) {
			return false
		}
	}
	return true
}

func IDs(tables []RouteTable) []string {
	ids := make([]string, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, string(t.ID))
	}
	return ids
}

func joinIDs(tables []RouteTable) string {
	return strings.Join(IDs(tables), ",")
}

type ProbeOutcome struct {
	Success    bool
	Diagnostic string
}

type FailoverState int8

const (
	Healthy FailoverState = iota
	Failed
)

func (s FailoverState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int8(s))
}
