package jumphost

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
	"github.com/hemantobora/elasticache-jumphost/internal/utils"
)

// describeInstance fetches a single instance by id.
func describeInstance(ctx context.Context, client EC2API, instanceID string) (*ec2types.Instance, error) {
	out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, classify("ec2", "DescribeInstances", models.KindInstance, instanceID, err,
			codeInstanceNotFound, codeInstanceMalformed)
	}
	for _, res := range out.Reservations {
		if len(res.Instances) > 0 {
			inst := res.Instances[0]
			return &inst, nil
		}
	}
	return nil, &models.NotFoundError{Kind: models.KindInstance, ID: instanceID}
}

// instanceNetwork returns where an instance sits in the network.
func instanceNetwork(inst *ec2types.Instance) models.NetworkContext {
	return models.NetworkContext{
		VpcID:    aws.ToString(inst.VpcId),
		SubnetID: aws.ToString(inst.SubnetId),
		SecurityGroupIDs: lo.FilterMap(inst.SecurityGroups, func(g ec2types.GroupIdentifier, _ int) (string, bool) {
			id := aws.ToString(g.GroupId)
			return id, id != ""
		}),
	}
}

// taggedReplicationGroup reads the replication group from a jump host Name
// tag assigned at creation.
func taggedReplicationGroup(inst *ec2types.Instance) (string, bool) {
	tag, ok := lo.Find(inst.Tags, func(t ec2types.Tag) bool { return aws.ToString(t.Key) == "Name" })
	if !ok {
		return "", false
	}
	return utils.ReplicationGroupFromName(aws.ToString(tag.Value))
}
