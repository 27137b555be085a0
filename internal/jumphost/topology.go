package jumphost

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// TopologyResolver reads replication group topology from ElastiCache.
type TopologyResolver struct {
	cache  ElastiCacheAPI
	logger zerolog.Logger
}

// NewTopologyResolver creates a resolver backed by the given client.
func NewTopologyResolver(cache ElastiCacheAPI, logger zerolog.Logger) *TopologyResolver {
	return &TopologyResolver{cache: cache, logger: logger}
}

// Resolve describes a replication group and its first member cluster.
//
// The first member is treated as representative of the whole group: member
// clusters are assumed to share VPC, subnet group, security groups and port.
func (r *TopologyResolver) Resolve(ctx context.Context, replicationGroupID string) (*models.ReplicationGroupTopology, error) {
	out, err := r.cache.DescribeReplicationGroups(ctx, &elasticache.DescribeReplicationGroupsInput{
		ReplicationGroupId: aws.String(replicationGroupID),
	})
	if err != nil {
		return nil, classify("elasticache", "DescribeReplicationGroups", models.KindReplicationGroup,
			replicationGroupID, err, codeReplicationGroupNotFound)
	}
	if len(out.ReplicationGroups) == 0 {
		return nil, &models.NotFoundError{Kind: models.KindReplicationGroup, ID: replicationGroupID}
	}
	rg := out.ReplicationGroups[0]
	if len(rg.MemberClusters) == 0 {
		return nil, &models.NotFoundError{
			Kind:   models.KindReplicationGroup,
			ID:     replicationGroupID,
			Detail: "has no member clusters",
		}
	}

	topo := &models.ReplicationGroupTopology{
		ReplicationGroupID: replicationGroupID,
		MemberClusters:     append([]string(nil), rg.MemberClusters...),
	}
	if ep := rg.ConfigurationEndpoint; ep != nil && aws.ToString(ep.Address) != "" {
		topo.ConfigurationEndpoint = &models.Endpoint{
			Address: aws.ToString(ep.Address),
			Port:    aws.ToInt32(ep.Port),
		}
	}

	rep, err := r.DescribeCluster(ctx, topo.MemberClusters[0])
	if err != nil {
		return nil, err
	}
	topo.Representative = *rep
	if topo.ConfigurationEndpoint == nil && rep.Endpoint == nil {
		return nil, &models.NotFoundError{
			Kind:   models.KindCacheEndpoint,
			ID:     rep.ClusterID,
			Detail: "has no cache node with an endpoint",
		}
	}

	r.logger.Debug().
		Str("replication_group", replicationGroupID).
		Int("members", len(topo.MemberClusters)).
		Bool("configuration_endpoint", topo.ConfigurationEndpoint != nil).
		Int32("port", topo.Port()).
		Msg("resolved replication group topology")
	return topo, nil
}

// DescribeCluster returns the network attachment of one cache cluster.
func (r *TopologyResolver) DescribeCluster(ctx context.Context, clusterID string) (*models.ClusterNetwork, error) {
	out, err := r.cache.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
		CacheClusterId:    aws.String(clusterID),
		ShowCacheNodeInfo: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("elasticache", "DescribeCacheClusters", models.KindCacheCluster,
			clusterID, err, codeCacheClusterNotFound)
	}
	if len(out.CacheClusters) == 0 {
		return nil, &models.NotFoundError{Kind: models.KindCacheCluster, ID: clusterID}
	}
	cluster := out.CacheClusters[0]

	net := &models.ClusterNetwork{
		ClusterID:       clusterID,
		SubnetGroupName: aws.ToString(cluster.CacheSubnetGroupName),
	}
	for _, sg := range cluster.SecurityGroups {
		if id := aws.ToString(sg.SecurityGroupId); id != "" {
			net.SecurityGroupIDs = append(net.SecurityGroupIDs, id)
		}
	}
	for _, node := range cluster.CacheNodes {
		if node.Endpoint != nil && aws.ToString(node.Endpoint.Address) != "" {
			net.Endpoint = &models.Endpoint{
				Address: aws.ToString(node.Endpoint.Address),
				Port:    aws.ToInt32(node.Endpoint.Port),
			}
			break
		}
	}
	return net, nil
}

// SubnetGroupVpc returns the VPC a cache subnet group belongs to.
func (r *TopologyResolver) SubnetGroupVpc(ctx context.Context, subnetGroupName string) (string, error) {
	if subnetGroupName == "" {
		return "", &models.NotFoundError{
			Kind:   models.KindCacheSubnetGroup,
			ID:     "(none)",
			Detail: "is not set on the cache cluster; only VPC clusters are supported",
		}
	}
	out, err := r.cache.DescribeCacheSubnetGroups(ctx, &elasticache.DescribeCacheSubnetGroupsInput{
		CacheSubnetGroupName: aws.String(subnetGroupName),
	})
	if err != nil {
		return "", classify("elasticache", "DescribeCacheSubnetGroups", models.KindCacheSubnetGroup,
			subnetGroupName, err, codeCacheSubnetGroupNotFound)
	}
	group, ok := lo.Find(out.CacheSubnetGroups, func(g ectypes.CacheSubnetGroup) bool {
		return aws.ToString(g.VpcId) != ""
	})
	if !ok {
		return "", &models.NotFoundError{Kind: models.KindCacheSubnetGroup, ID: subnetGroupName}
	}
	return aws.ToString(group.VpcId), nil
}
