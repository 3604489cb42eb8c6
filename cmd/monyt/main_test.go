package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylmrx/monyt/internal/cloud/imds"
	"github.com/ylmrx/monyt/internal/cloud/memcloud"
	"github.com/ylmrx/monyt/internal/topology"
	"github.com/ylmrx/monyt/pkg/nat"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "monyt.yaml")
	body += "log:\n  logfile: " + filepath.Join(dir, "monyt.log") + "\n  console: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `
tag: role
pattern: aws-nat
ping:
  num: 1
  timeout: 1
  nextping: 1
  strategy: tcp
  port: 1
metrics:
  backend: prometheus
  listen: 127.0.0.1:0
`

func testEnv(cloud *memcloud.Cloud, id nat.InstanceID, stderr *bytes.Buffer) environment {
	return environment{
		identity: func(context.Context) (imds.Identity, error) {
			return imds.Identity{InstanceID: id, Region: "eu-west-1", Zone: "eu-west-1a"}, nil
		},
		cloud: func(context.Context, string, string) (Cloud, error) {
			return cloud, nil
		},
		stderr: stderr,
	}
}

func TestRun_MissingArgument(t *testing.T) {
	stderr := &bytes.Buffer{}
	code := run(context.Background(), nil, testEnv(memcloud.Demo(), "i-0aaa", stderr))
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr.String(), "usage")
}

func TestRun_InvalidConfig(t *testing.T) {
	stderr := &bytes.Buffer{}
	path := writeConfig(t, "ping:\n  num: 3\n")
	code := run(context.Background(), []string{path}, testEnv(memcloud.Demo(), "i-0aaa", stderr))
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr.String(), "tag is required")
}

func TestRun_LocalWithoutRoleTag(t *testing.T) {
	stderr := &bytes.Buffer{}
	path := writeConfig(t, baseConfig)
	code := run(context.Background(), []string{path}, testEnv(memcloud.Demo(), "i-0ccc", stderr))
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr.String(), "NAT role tag")
}

func TestRun_NoPeer(t *testing.T) {
	cloud := memcloud.New()
	cloud.AddInstance(topology.Instance{
		ID: "i-only", VpcID: "vpc-1", Zone: "a", State: "running",
		PrivateIP: net.IPv4(10, 0, 1, 1), Tags: map[string]string{"role": "aws-nat"},
	})
	stderr := &bytes.Buffer{}
	path := writeConfig(t, baseConfig)
	code := run(context.Background(), []string{path}, testEnv(cloud, "i-only", stderr))
	assert.Equal(t, exitNoPeer, code)
}

func TestRun_MetadataFailure(t *testing.T) {
	stderr := &bytes.Buffer{}
	env := testEnv(memcloud.Demo(), "i-0aaa", stderr)
	env.identity = func(context.Context) (imds.Identity, error) {
		return imds.Identity{}, errors.New("no metadata service")
	}
	path := writeConfig(t, baseConfig)
	code := run(context.Background(), []string{path}, env)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr.String(), "no metadata service")
}

func TestRun_StopsOnSignal(t *testing.T) {
	cloud := memcloud.Demo()
	cloud.AddRouteTable("rtb-a", "i-0bbb", "subnet-a-private")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stderr := &bytes.Buffer{}
	path := writeConfig(t, baseConfig)
	code := run(ctx, []string{path}, testEnv(cloud, "i-0aaa", stderr))

	assert.Equal(t, exitOK, code)
	// the interrupted probe must not trigger a failover
	assert.Equal(t, nat.InstanceID("i-0bbb"), cloud.NextHop("rtb-b"))
}

func TestRun_LogsIdentityAtInfo(t *testing.T) {
	cloud := memcloud.Demo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := writeConfig(t, baseConfig)
	code := run(ctx, []string{path}, testEnv(cloud, "i-0aaa", &bytes.Buffer{}))
	require.Equal(t, exitOK, code)

	f, err := os.Open(filepath.Join(filepath.Dir(path), "monyt.log"))
	require.NoError(t, err)
	defer f.Close()

	var level string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		if msg, _ := line["message"].(string); msg == "running on i-0aaa in eu-west-1a (eu-west-1)" {
			level, _ = line["level"].(string)
		}
	}
	assert.Equal(t, "info", level)
}
