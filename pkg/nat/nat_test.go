package nat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteSet_Disjoint(t *testing.T) {
	set := RouteSet{
		Local:  []RouteTable{{ID: "rtb-1", NextHop: "i-local"}},
		Remote: []RouteTable{{ID: "rtb-2", NextHop: "i-remote"}},
	}
	assert.True(t, set.Disjoint())

	set.Remote = append(set.Remote, RouteTable{ID: "rtb-1", NextHop: "i-remote"})
	assert.False(t, set.Disjoint())
}

func TestRouteSet_String(t *testing.T) {
	set := RouteSet{
		Local:         []RouteTable{{ID: "rtb-1"}},
		Remote:        []RouteTable{{ID: "rtb-2"}, {ID: "rtb-3"}},
		ExpectedLocal: nil,
	}
	assert.Equal(t, "{local=[rtb-1], remote=[rtb-2,rtb-3], expected_local=[]}", set.String())
}

func TestRouteTable_PointsAt(t *testing.T) {
	tbl := RouteTable{ID: "rtb-1", NextHop: "i-local"}
	assert.True(t, tbl.PointsAt("i-local"))
	assert.False(t, tbl.PointsAt("i-remote"))
	assert.False(t, RouteTable{ID: "rtb-2"}.PointsAt(""))
}

func TestFailoverState_String(t *testing.T) {
	assert.Equal(t, "healthy", Healthy.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown(7)", FailoverState(7).String())
}
