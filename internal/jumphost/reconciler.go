package jumphost

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// Reconciliation is the outcome of a successful security group
// reconciliation.
type Reconciliation struct {
	VpcID string
	Port  int32
	// Authorized counts the ingress rules that had to be added; the rest
	// were already present.
	Authorized int
	Present    int
}

// ingressOutcome is the successful result of ensuring one ingress rule.
// A rule that already exists is a no-op success, never an error.
type ingressOutcome int

const (
	ingressAuthorized ingressOutcome = iota
	ingressAlreadyPresent
)

// Reconciler makes sure a jump host's security group is allowed into every
// member cluster of a replication group.
type Reconciler struct {
	ec2      EC2API
	topology *TopologyResolver
	logger   zerolog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(ec2Client EC2API, topology *TopologyResolver, logger zerolog.Logger) *Reconciler {
	return &Reconciler{ec2: ec2Client, topology: topology, logger: logger}
}

// Reconcile proves the jump host and the replication group share a VPC, then
// ensures an inbound TCP rule on the cache port from the jump host's
// security group exists on every member cluster's security groups.
//
// Clusters are processed one at a time in topology order. The first failure
// stops the loop; later clusters are left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, replicationGroupID, instanceID string) (*Reconciliation, error) {
	topo, err := r.topology.Resolve(ctx, replicationGroupID)
	if err != nil {
		return nil, err
	}
	cacheVpc, err := r.topology.SubnetGroupVpc(ctx, topo.Representative.SubnetGroupName)
	if err != nil {
		return nil, err
	}

	inst, err := describeInstance(ctx, r.ec2, instanceID)
	if err != nil {
		return nil, err
	}
	host := instanceNetwork(inst)
	if host.VpcID != cacheVpc {
		return nil, &models.VpcMismatchError{InstanceVpcID: host.VpcID, CacheVpcID: cacheVpc}
	}
	if len(host.SecurityGroupIDs) == 0 {
		return nil, &models.NotFoundError{
			Kind:   models.KindSecurityGroup,
			ID:     instanceID,
			Detail: "has no security group attached",
		}
	}
	source := host.SecurityGroupIDs[0]

	result := &Reconciliation{VpcID: cacheVpc, Port: topo.Port()}
	for i, clusterID := range topo.MemberClusters {
		cluster, err := r.topology.DescribeCluster(ctx, clusterID)
		if err != nil {
			return nil, r.stopped(replicationGroupID, topo, i, err)
		}
		port := topo.PortFor(*cluster)
		if port == 0 {
			return nil, r.stopped(replicationGroupID, topo, i, &models.NotFoundError{
				Kind:   models.KindCacheEndpoint,
				ID:     clusterID,
				Detail: "has no cache node with an endpoint",
			})
		}
		if len(cluster.SecurityGroupIDs) == 0 {
			return nil, r.stopped(replicationGroupID, topo, i, &models.NotFoundError{
				Kind:   models.KindSecurityGroup,
				ID:     clusterID,
				Detail: "has no security group attached",
			})
		}
		for _, target := range cluster.SecurityGroupIDs {
			outcome, err := r.ensureIngress(ctx, target, source, port)
			if err != nil {
				return nil, r.stopped(replicationGroupID, topo, i, err)
			}
			if outcome == ingressAuthorized {
				result.Authorized++
			} else {
				result.Present++
			}
		}
	}

	r.logger.Info().
		Str("replication_group", replicationGroupID).
		Str("instance", instanceID).
		Str("vpc", cacheVpc).
		Int32("port", result.Port).
		Int("authorized", result.Authorized).
		Int("already_present", result.Present).
		Msg("security groups reconciled")
	return result, nil
}

// stopped logs which clusters were left unreconciled and wraps err with the
// failing cluster.
func (r *Reconciler) stopped(replicationGroupID string, topo *models.ReplicationGroupTopology, failed int, err error) error {
	r.logger.Warn().
		Err(err).
		Str("replication_group", replicationGroupID).
		Str("cluster", topo.MemberClusters[failed]).
		Strs("not_attempted", topo.MemberClusters[failed+1:]).
		Msg("security group reconciliation stopped")
	return fmt.Errorf("reconcile cluster %s: %w", topo.MemberClusters[failed], err)
}

// ensureIngress adds an inbound TCP rule on port from source to target
// unless one is already there.
func (r *Reconciler) ensureIngress(ctx context.Context, target, source string, port int32) (ingressOutcome, error) {
	out, err := r.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{target},
	})
	if err != nil {
		return 0, classify("ec2", "DescribeSecurityGroups", models.KindSecurityGroup, target, err,
			codeSecurityGroupNotFound)
	}
	for _, sg := range out.SecurityGroups {
		if lo.SomeBy(sg.IpPermissions, func(p ec2types.IpPermission) bool {
			return permissionAllows(p, source, port)
		}) {
			r.logger.Debug().Str("security_group", target).Str("source", source).Int32("port", port).
				Msg("ingress rule already present")
			return ingressAlreadyPresent, nil
		}
	}

	_, err = r.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(target),
		IpPermissions: []ec2types.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(port),
			ToPort:     aws.Int32(port),
			UserIdGroupPairs: []ec2types.UserIdGroupPair{{
				GroupId:     aws.String(source),
				Description: aws.String("ElastiCache jump host access"),
			}},
		}},
	})
	if err != nil {
		if apiErrorCode(err) == codeDuplicatePermission {
			r.logger.Debug().Str("security_group", target).Str("source", source).Int32("port", port).
				Msg("ingress rule added concurrently")
			return ingressAlreadyPresent, nil
		}
		return 0, &models.ProviderError{
			Provider:  "ec2",
			Operation: "AuthorizeSecurityGroupIngress",
			Resource:  target,
			Cause:     err,
		}
	}
	r.logger.Info().Str("security_group", target).Str("source", source).Int32("port", port).
		Msg("authorized ingress")
	return ingressAuthorized, nil
}

// permissionAllows reports whether p lets TCP traffic on port in from the
// source security group.
func permissionAllows(p ec2types.IpPermission, source string, port int32) bool {
	switch aws.ToString(p.IpProtocol) {
	case "-1":
	case "tcp", "6":
		if p.FromPort == nil || p.ToPort == nil {
			return false
		}
		if port < *p.FromPort || port > *p.ToPort {
			return false
		}
	default:
		return false
	}
	return lo.SomeBy(p.UserIdGroupPairs, func(pair ec2types.UserIdGroupPair) bool {
		return aws.ToString(pair.GroupId) == source
	})
}
