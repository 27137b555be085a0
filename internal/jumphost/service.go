package jumphost

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// Options configures a Service.
type Options struct {
	Provisioner ProvisionerOptions
	// KeyDir is the directory holding <key>.pem files, used in SSH commands.
	KeyDir string
}

// Service is the caller-facing entry point. It holds no state beyond its
// clients; every call reads the cloud afresh.
type Service struct {
	provisioner *Provisioner
	tunnels     *TunnelBuilder
}

// NewService wires the resolver, classifier, reconciler, provisioner and
// tunnel builder over the given clients.
func NewService(ec2Client EC2API, cacheClient ElastiCacheAPI, opts Options, logger zerolog.Logger) *Service {
	topology := NewTopologyResolver(cacheClient, logger.With().Str("component", "topology").Logger())
	reconciler := NewReconciler(ec2Client, topology, logger.With().Str("component", "reconciler").Logger())
	classifier := NewSubnetClassifier(ec2Client, logger.With().Str("component", "subnet").Logger())
	return &Service{
		provisioner: NewProvisioner(ec2Client, topology, classifier, reconciler, opts.Provisioner,
			logger.With().Str("component", "provisioner").Logger()),
		tunnels: NewTunnelBuilder(ec2Client, topology, reconciler, opts.KeyDir,
			logger.With().Str("component", "tunnel").Logger()),
	}
}

// Connect proves an existing jump host can reach the replication group,
// adding ingress rules where needed.
func (s *Service) Connect(ctx context.Context, replicationGroupID, instanceID string) (*models.ConnectResult, error) {
	if err := requireIDs(replicationGroupID, instanceID); err != nil {
		return nil, err
	}
	return s.tunnels.Connect(ctx, replicationGroupID, instanceID)
}

// CreateJumpHost launches a jump host for the replication group and
// reconciles its security groups. The returned result holds either the
// created host or an error message, never both.
func (s *Service) CreateJumpHost(ctx context.Context, req CreateRequest) models.ProvisioningResult {
	host, err := s.provisioner.Create(ctx, req)
	return models.NewProvisioningResult(host, err)
}

// GetTunnelCommand returns the SSH command that forwards the cache port
// through the jump host.
func (s *Service) GetTunnelCommand(ctx context.Context, replicationGroupID, instanceID string) (*models.TunnelDescriptor, error) {
	if err := requireIDs(replicationGroupID, instanceID); err != nil {
		return nil, err
	}
	return s.tunnels.Command(ctx, replicationGroupID, instanceID)
}

type idPair struct {
	ReplicationGroupID string `validate:"required"`
	InstanceID         string `validate:"required"`
}

func requireIDs(replicationGroupID, instanceID string) error {
	if err := validate.Struct(idPair{replicationGroupID, instanceID}); err != nil {
		return &models.InputValidationError{Cause: err}
	}
	return nil
}
