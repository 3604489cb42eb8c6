package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ylmrx/monyt/internal/cloud/memcloud"
	"github.com/ylmrx/monyt/internal/topology"
)

func TestDemoReport(t *testing.T) {
	cloud := memcloud.Demo()
	cloud.AddRouteTable("rtb-a", "i-0bbb", "subnet-a-private")
	resolver := topology.NewResolver(cloud, "role", "aws-nat", zerolog.Nop())

	local, remote, err := resolver.ResolvePeers(context.Background(), "i-0aaa")
	require.NoError(t, err)
	set, err := resolver.Classify(context.Background())
	require.NoError(t, err)

	r := newReport(local, remote, set)
	assert.Equal(t, "i-0aaa(10.0.1.10)", r.Local)
	assert.Empty(t, r.PointAtLocal)
	assert.Equal(t, []string{"rtb-a", "rtb-b"}, r.PointAtRemote)
	assert.Equal(t, []string{"rtb-a"}, r.ToClaim)

	out, err := yaml.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "to_claim:")
	assert.Contains(t, string(out), "expected_local:")
}
