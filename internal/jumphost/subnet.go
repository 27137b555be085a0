package jumphost

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// SubnetClassifier decides whether instances launched into a subnet are
// reachable over SSH from the internet.
type SubnetClassifier struct {
	ec2    EC2API
	logger zerolog.Logger
}

// NewSubnetClassifier creates a classifier.
func NewSubnetClassifier(ec2Client EC2API, logger zerolog.Logger) *SubnetClassifier {
	return &SubnetClassifier{ec2: ec2Client, logger: logger}
}

// Classify applies, first match wins:
//  1. a route to an internet gateway makes the subnet public;
//  2. a default-for-AZ subnet in the default VPC is public;
//  3. a subnet that auto-assigns public IPs in the default VPC is public;
//  4. anything else is private.
func (c *SubnetClassifier) Classify(ctx context.Context, subnetID string) (*models.SubnetReachability, error) {
	subnet, err := c.describeSubnet(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	vpcID := aws.ToString(subnet.VpcId)
	verdict := &models.SubnetReachability{SubnetID: subnetID, VpcID: vpcID}

	igw, err := c.routesToInternetGateway(ctx, subnetID, vpcID)
	if err != nil {
		return nil, err
	}
	if igw {
		verdict.IsPublic = true
		verdict.Reason = models.ReasonInternetGatewayRoute
		c.log(verdict)
		return verdict, nil
	}

	defaultForAz := aws.ToBool(subnet.DefaultForAz)
	mapPublicIP := aws.ToBool(subnet.MapPublicIpOnLaunch)
	if defaultForAz || mapPublicIP {
		isDefault, err := c.isDefaultVpc(ctx, vpcID)
		if err != nil {
			return nil, err
		}
		switch {
		case isDefault && defaultForAz:
			verdict.IsPublic = true
			verdict.Reason = models.ReasonDefaultSubnetInDefaultVpc
		case isDefault && mapPublicIP:
			verdict.IsPublic = true
			verdict.Reason = models.ReasonAutoAssignPublicIPInDefaultVpc
		}
	}
	if !verdict.IsPublic {
		verdict.Reason = models.ReasonPrivate
	}
	c.log(verdict)
	return verdict, nil
}

func (c *SubnetClassifier) log(v *models.SubnetReachability) {
	c.logger.Debug().
		Str("subnet", v.SubnetID).
		Str("vpc", v.VpcID).
		Bool("public", v.IsPublic).
		Str("reason", v.Reason.String()).
		Msg("classified subnet")
}

func (c *SubnetClassifier) describeSubnet(ctx context.Context, subnetID string) (*ec2types.Subnet, error) {
	out, err := c.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		SubnetIds: []string{subnetID},
	})
	if err != nil {
		return nil, classify("ec2", "DescribeSubnets", models.KindSubnet, subnetID, err, codeSubnetNotFound)
	}
	if len(out.Subnets) == 0 {
		return nil, &models.NotFoundError{Kind: models.KindSubnet, ID: subnetID}
	}
	return &out.Subnets[0], nil
}

// routesToInternetGateway inspects the route tables associated with the
// subnet. A subnet with no explicit association uses its VPC's main route
// table.
func (c *SubnetClassifier) routesToInternetGateway(ctx context.Context, subnetID, vpcID string) (bool, error) {
	tables, err := c.routeTables(ctx, ec2types.Filter{
		Name:   aws.String("association.subnet-id"),
		Values: []string{subnetID},
	})
	if err != nil {
		return false, err
	}
	if len(tables) == 0 && vpcID != "" {
		tables, err = c.routeTables(ctx,
			ec2types.Filter{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			ec2types.Filter{Name: aws.String("association.main"), Values: []string{"true"}},
		)
		if err != nil {
			return false, err
		}
	}
	return lo.SomeBy(tables, func(t ec2types.RouteTable) bool {
		return lo.SomeBy(t.Routes, func(r ec2types.Route) bool {
			return strings.HasPrefix(aws.ToString(r.GatewayId), "igw-") && r.State != ec2types.RouteStateBlackhole
		})
	}), nil
}

func (c *SubnetClassifier) routeTables(ctx context.Context, filters ...ec2types.Filter) ([]ec2types.RouteTable, error) {
	var tables []ec2types.RouteTable
	p := ec2.NewDescribeRouteTablesPaginator(c.ec2, &ec2.DescribeRouteTablesInput{Filters: filters})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &models.ProviderError{Provider: "ec2", Operation: "DescribeRouteTables", Cause: err}
		}
		tables = append(tables, page.RouteTables...)
	}
	return tables, nil
}

func (c *SubnetClassifier) isDefaultVpc(ctx context.Context, vpcID string) (bool, error) {
	out, err := c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		VpcIds: []string{vpcID},
	})
	if err != nil {
		return false, classify("ec2", "DescribeVpcs", models.KindVpc, vpcID, err, codeVpcNotFound)
	}
	if len(out.Vpcs) == 0 {
		return false, &models.NotFoundError{Kind: models.KindVpc, ID: vpcID}
	}
	return aws.ToBool(out.Vpcs[0].IsDefault), nil
}
