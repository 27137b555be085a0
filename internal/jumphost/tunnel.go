package jumphost

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// StatusSuccess is the status reported by a successful connect.
const StatusSuccess = "Success"

const defaultLoginUser = "ec2-user"

// loginUsers maps an instance platform to its SSH login user. Any platform
// not listed uses defaultLoginUser.
var loginUsers = map[string]string{
	"windows": "Administrator",
}

// LoginUser returns the SSH login user for an instance platform value.
func LoginUser(platform string) string {
	if user, ok := loginUsers[strings.ToLower(platform)]; ok {
		return user
	}
	return defaultLoginUser
}

// TunnelBuilder derives connection records and SSH commands for existing
// jump hosts.
type TunnelBuilder struct {
	ec2        EC2API
	topology   *TopologyResolver
	reconciler *Reconciler
	keyDir     string
	logger     zerolog.Logger
}

// NewTunnelBuilder creates a builder. keyDir, when set, is prefixed to the
// key file in generated commands.
func NewTunnelBuilder(ec2Client EC2API, topology *TopologyResolver, reconciler *Reconciler,
	keyDir string, logger zerolog.Logger) *TunnelBuilder {
	return &TunnelBuilder{
		ec2:        ec2Client,
		topology:   topology,
		reconciler: reconciler,
		keyDir:     keyDir,
		logger:     logger,
	}
}

// Connect re-proves the network path from an existing jump host to a
// replication group.
func (b *TunnelBuilder) Connect(ctx context.Context, replicationGroupID, instanceID string) (*models.ConnectResult, error) {
	rec, err := b.reconciler.Reconcile(ctx, replicationGroupID, instanceID)
	if err != nil {
		return nil, err
	}
	return &models.ConnectResult{
		Status:                   StatusSuccess,
		InstanceID:               instanceID,
		ReplicationGroupID:       replicationGroupID,
		CachePort:                rec.Port,
		VpcID:                    rec.VpcID,
		SecurityGroupsConfigured: true,
	}, nil
}

// Command builds the SSH local port forward through the jump host to the
// replication group endpoint. The cache port is used on both ends.
func (b *TunnelBuilder) Command(ctx context.Context, replicationGroupID, instanceID string) (*models.TunnelDescriptor, error) {
	inst, err := describeInstance(ctx, b.ec2, instanceID)
	if err != nil {
		return nil, err
	}
	dns := aws.ToString(inst.PublicDnsName)
	if dns == "" {
		return nil, &models.NotFoundError{
			Kind:   models.KindPublicDNS,
			ID:     instanceID,
			Detail: "has no public DNS name; is it running in a public subnet?",
		}
	}
	if rg, ok := taggedReplicationGroup(inst); ok && rg != replicationGroupID {
		b.logger.Warn().Str("instance", instanceID).Str("tagged_replication_group", rg).
			Str("replication_group", replicationGroupID).Msg("jump host was created for another replication group")
	}
	keyName := aws.ToString(inst.KeyName)

	topo, err := b.topology.Resolve(ctx, replicationGroupID)
	if err != nil {
		return nil, err
	}
	remote := topo.RemoteEndpoint()
	port := topo.Port()
	user := LoginUser(string(inst.Platform))

	return &models.TunnelDescriptor{
		KeyName:        keyName,
		User:           user,
		JumpHostDNS:    dns,
		LocalPort:      port,
		RemoteEndpoint: remote.Address,
		RemotePort:     port,
		Command:        sshCommand(b.keyFile(keyName), user, dns, remote.Address, port),
	}, nil
}

func (b *TunnelBuilder) keyFile(keyName string) string {
	file := keyName + ".pem"
	if b.keyDir == "" {
		return file
	}
	return filepath.Join(b.keyDir, file)
}

func sshCommand(keyFile, user, host, remoteAddr string, port int32) string {
	return fmt.Sprintf(`ssh -i "%s" -fN -l %s -L %d:%s:%d %s`, keyFile, user, port, remoteAddr, port, host)
}
