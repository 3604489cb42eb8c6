package imds

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/ylmrx/monyt/pkg/nat"
)

type Identity struct {
	InstanceID nat.InstanceID
	Region     string
	Zone       string
	PrivateIP  string
}

type documentGetter interface {
	GetInstanceIdentityDocument(ctx context.Context, in *imds.GetInstanceIdentityDocumentInput, opts ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error)
}

type Client struct {
	api     documentGetter
	timeout time.Duration
}

func New() *Client {
	return &Client{
		api:     imds.New(imds.Options{}),
		timeout: 5 * time.Second,
	}
}

// Identity asks the metadata service who the local instance is.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.api.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read instance identity document: %w", err)
	}
	if out.InstanceID == "" {
		return Identity{}, fmt.Errorf("instance identity document has no instance id")
	}
	return Identity{
		InstanceID: nat.InstanceID(out.InstanceID),
		Region:     out.Region,
		Zone:       out.AvailabilityZone,
		PrivateIP:  out.PrivateIP,
	}, nil
}
