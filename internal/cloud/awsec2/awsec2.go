package awsec2

import (
	"context"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ylmrx/monyt/internal/topology"
	"github.com/ylmrx/monyt/pkg/nat"
)

// API is the part of the EC2 client the monitor uses.
type API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeRouteTables(ctx context.Context, in *ec2.DescribeRouteTablesInput, opts ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DescribeSubnets(ctx context.Context, in *ec2.DescribeSubnetsInput, opts ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	ReplaceRoute(ctx context.Context, in *ec2.ReplaceRouteInput, opts ...func(*ec2.Options)) (*ec2.ReplaceRouteOutput, error)
}

type Cloud struct {
	api API
}

// LoadConfig resolves credentials from the environment and the shared
// config files. An empty profile uses the default chain.
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func New(cfg aws.Config) *Cloud {
	return &Cloud{api: ec2.NewFromConfig(cfg)}
}

func NewWithAPI(api API) *Cloud {
	return &Cloud{api: api}
}

func vpcFilter(vpcID string) []types.Filter {
	return []types.Filter{{
		Name:   aws.String("vpc-id"),
		Values: []string{vpcID},
	}}
}

func (c *Cloud) Instance(ctx context.Context, id nat.InstanceID) (topology.Instance, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{string(id)},
	})
	if err != nil {
		return topology.Instance{}, fmt.Errorf("describe instance %s: %w", id, err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if aws.ToString(inst.InstanceId) == string(id) {
				return toInstance(inst), nil
			}
		}
	}
	return topology.Instance{}, fmt.Errorf("instance %s not found", id)
}

func (c *Cloud) Instances(ctx context.Context, vpcID string) ([]topology.Instance, error) {
	var result []topology.Instance
	pages := ec2.NewDescribeInstancesPaginator(c.api, &ec2.DescribeInstancesInput{
		Filters: vpcFilter(vpcID),
	})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances of %s: %w", vpcID, err)
		}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				result = append(result, toInstance(inst))
			}
		}
	}
	return result, nil
}

func (c *Cloud) RouteTables(ctx context.Context, vpcID string) ([]topology.RouteTable, error) {
	var result []topology.RouteTable
	pages := ec2.NewDescribeRouteTablesPaginator(c.api, &ec2.DescribeRouteTablesInput{
		Filters: vpcFilter(vpcID),
	})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe route tables of %s: %w", vpcID, err)
		}
		for _, rt := range out.RouteTables {
			result = append(result, toRouteTable(rt))
		}
	}
	return result, nil
}

func (c *Cloud) Subnets(ctx context.Context, vpcID string) ([]topology.Subnet, error) {
	var result []topology.Subnet
	pages := ec2.NewDescribeSubnetsPaginator(c.api, &ec2.DescribeSubnetsInput{
		Filters: vpcFilter(vpcID),
	})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe subnets of %s: %w", vpcID, err)
		}
		for _, sub := range out.Subnets {
			result = append(result, topology.Subnet{
				ID:   aws.ToString(sub.SubnetId),
				Zone: aws.ToString(sub.AvailabilityZone),
			})
		}
	}
	return result, nil
}

func (c *Cloud) ReplaceDefaultRoute(ctx context.Context, table nat.RouteTableID, target nat.InstanceID) error {
	_, err := c.api.ReplaceRoute(ctx, &ec2.ReplaceRouteInput{
		RouteTableId:         aws.String(string(table)),
		DestinationCidrBlock: aws.String(nat.DefaultRouteCIDR),
		InstanceId:           aws.String(string(target)),
	})
	if err != nil {
		return fmt.Errorf("replace route %s in %s: %w", nat.DefaultRouteCIDR, table, err)
	}
	return nil
}

func toInstance(inst types.Instance) topology.Instance {
	result := topology.Instance{
		ID:    nat.InstanceID(aws.ToString(inst.InstanceId)),
		VpcID: aws.ToString(inst.VpcId),
		Tags:  make(map[string]string, len(inst.Tags)),
	}
	if ip := aws.ToString(inst.PrivateIpAddress); ip != "" {
		result.PrivateIP = net.ParseIP(ip)
	}
	if inst.Placement != nil {
		result.Zone = aws.ToString(inst.Placement.AvailabilityZone)
	}
	if inst.State != nil {
		result.State = string(inst.State.Name)
	}
	for _, tag := range inst.Tags {
		result.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return result
}

func toRouteTable(rt types.RouteTable) topology.RouteTable {
	result := topology.RouteTable{
		ID: nat.RouteTableID(aws.ToString(rt.RouteTableId)),
	}
	for _, route := range rt.Routes {
		if aws.ToString(route.DestinationCidrBlock) != nat.DefaultRouteCIDR {
			continue
		}
		if target := aws.ToString(route.InstanceId); target != "" {
			result.HasInstanceDefault = true
			result.DefaultTarget = nat.InstanceID(target)
		}
	}
	for _, assoc := range rt.Associations {
		if subnet := aws.ToString(assoc.SubnetId); subnet != "" {
			result.SubnetIDs = append(result.SubnetIDs, subnet)
		}
	}
	return result
}
