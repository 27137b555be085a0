// Package jumphost provisions bastion instances for ElastiCache replication
// groups and proves that they can reach the cache nodes.
//
// Every operation re-derives its view of the network from live cloud state;
// nothing is cached between calls.
package jumphost

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/smithy-go"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// EC2API is the subset of the EC2 client used by this package.
// *ec2.Client satisfies it.
type EC2API interface {
	DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
}

// ElastiCacheAPI is the subset of the ElastiCache client used by this
// package. *elasticache.Client satisfies it.
type ElastiCacheAPI interface {
	DescribeReplicationGroups(ctx context.Context, params *elasticache.DescribeReplicationGroupsInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeReplicationGroupsOutput, error)
	DescribeCacheClusters(ctx context.Context, params *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error)
	DescribeCacheSubnetGroups(ctx context.Context, params *elasticache.DescribeCacheSubnetGroupsInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheSubnetGroupsOutput, error)
}

var (
	_ EC2API         = (*ec2.Client)(nil)
	_ ElastiCacheAPI = (*elasticache.Client)(nil)
)

// Provider error codes with special handling.
const (
	codeKeyPairNotFound          = "InvalidKeyPair.NotFound"
	codeDuplicatePermission      = "InvalidPermission.Duplicate"
	codeSubnetNotFound           = "InvalidSubnetID.NotFound"
	codeInstanceNotFound         = "InvalidInstanceID.NotFound"
	codeInstanceMalformed        = "InvalidInstanceID.Malformed"
	codeVpcNotFound              = "InvalidVpcID.NotFound"
	codeSecurityGroupNotFound    = "InvalidGroup.NotFound"
	codeReplicationGroupNotFound = "ReplicationGroupNotFoundFault"
	codeCacheClusterNotFound     = "CacheClusterNotFound"
	codeCacheSubnetGroupNotFound = "CacheSubnetGroupNotFoundFault"
)

// apiErrorCode extracts the provider error code from err, or "" when err is
// not an API error.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// classify turns a failed cloud call into a NotFoundError when the provider
// code says the resource does not exist, and a ProviderError otherwise.
func classify(provider, operation, kind, id string, err error, notFoundCodes ...string) error {
	code := apiErrorCode(err)
	for _, c := range notFoundCodes {
		if code == c {
			return &models.NotFoundError{Kind: kind, ID: id}
		}
	}
	return &models.ProviderError{
		Provider:  provider,
		Operation: operation,
		Resource:  id,
		Cause:     err,
	}
}
