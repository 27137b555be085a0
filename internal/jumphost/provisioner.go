package jumphost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
	"github.com/hemantobora/elasticache-jumphost/internal/utils"
)

// DefaultInstanceType is used when a create request does not name one.
const DefaultInstanceType = "t3.small"

var validate = validator.New()

// ImageFilter selects the jump host AMI family.
type ImageFilter struct {
	Owner        string
	NamePattern  string
	Architecture string
}

// DefaultImageFilter matches Amazon Linux 2023 x86_64 images.
var DefaultImageFilter = ImageFilter{
	Owner:        "amazon",
	NamePattern:  "al2023-ami-2023.*-x86_64",
	Architecture: "x86_64",
}

// ProvisionerOptions tunes jump host creation.
type ProvisionerOptions struct {
	DefaultInstanceType string
	Image               ImageFilter
	// AddressWait bounds how long to wait for the instance to reach the
	// running state when its public IP is not yet visible. Zero reads the
	// address back exactly once.
	AddressWait time.Duration
	// OnState, when set, is called as each provisioning state begins.
	OnState func(state string)
}

// CreateRequest describes a jump host to create.
type CreateRequest struct {
	ReplicationGroupID string `validate:"required"`
	KeyName            string `validate:"required"`
	SubnetID           string `validate:"required"`
	SecurityGroupID    string `validate:"required"`
	InstanceType       string
}

type provisionState int

const (
	stateValidateRequest provisionState = iota
	stateValidateKeyPair
	stateValidateSubnet
	stateValidateCacheVpc
	stateSelectImage
	stateLaunchInstance
	stateAwaitAddressing
	stateReconcileSecurityGroups
)

func (s provisionState) String() string {
	return [...]string{
		"ValidateRequest",
		"ValidateKeyPair",
		"ValidateSubnet",
		"ValidateCacheVpc",
		"SelectImage",
		"LaunchInstance",
		"AwaitAddressing",
		"ReconcileSecurityGroups",
	}[s]
}

// provisioning accumulates what each state learns.
type provisioning struct {
	req        CreateRequest
	subnet     *models.SubnetReachability
	spec       models.JumpHostSpec
	instanceID string
	publicIP   string
	reconciled *Reconciliation
}

// Provisioner creates jump hosts.
type Provisioner struct {
	ec2        EC2API
	topology   *TopologyResolver
	classifier *SubnetClassifier
	reconciler *Reconciler
	opts       ProvisionerOptions
	logger     zerolog.Logger
}

// NewProvisioner creates a provisioner.
func NewProvisioner(ec2Client EC2API, topology *TopologyResolver, classifier *SubnetClassifier,
	reconciler *Reconciler, opts ProvisionerOptions, logger zerolog.Logger) *Provisioner {
	if opts.DefaultInstanceType == "" {
		opts.DefaultInstanceType = DefaultInstanceType
	}
	if opts.Image == (ImageFilter{}) {
		opts.Image = DefaultImageFilter
	}
	return &Provisioner{
		ec2:        ec2Client,
		topology:   topology,
		classifier: classifier,
		reconciler: reconciler,
		opts:       opts,
		logger:     logger,
	}
}

// Create runs the provisioning states in order and stops at the first
// failure. Nothing is launched unless every validation state passed. A
// failure after launch is returned as a LaunchedInstanceError and the
// instance is left running.
func (p *Provisioner) Create(ctx context.Context, req CreateRequest) (*models.JumpHost, error) {
	run := &provisioning{req: req}
	steps := []struct {
		state provisionState
		fn    func(context.Context, *provisioning) error
	}{
		{stateValidateRequest, p.validateRequest},
		{stateValidateKeyPair, p.validateKeyPair},
		{stateValidateSubnet, p.validateSubnet},
		{stateValidateCacheVpc, p.validateCacheVpc},
		{stateSelectImage, p.selectImage},
		{stateLaunchInstance, p.launchInstance},
		{stateAwaitAddressing, p.awaitAddressing},
		{stateReconcileSecurityGroups, p.reconcileSecurityGroups},
	}
	for _, step := range steps {
		p.logger.Debug().Stringer("state", step.state).Str("replication_group", req.ReplicationGroupID).
			Msg("provisioning")
		if p.opts.OnState != nil {
			p.opts.OnState(step.state.String())
		}
		if err := step.fn(ctx, run); err != nil {
			p.logger.Error().Err(err).Stringer("state", step.state).Str("instance", run.instanceID).
				Msg("jump host provisioning failed")
			if run.instanceID != "" {
				return nil, &models.LaunchedInstanceError{InstanceID: run.instanceID, Cause: err}
			}
			return nil, err
		}
	}

	return &models.JumpHost{
		InstanceID:               run.instanceID,
		PublicIPAddress:          run.publicIP,
		InstanceType:             run.spec.InstanceType,
		SubnetID:                 run.spec.SubnetID,
		SecurityGroupID:          run.spec.SecurityGroupID,
		ReplicationGroupID:       req.ReplicationGroupID,
		SecurityGroupsConfigured: true,
		CachePort:                run.reconciled.Port,
		VpcID:                    run.reconciled.VpcID,
	}, nil
}

func (p *Provisioner) validateRequest(_ context.Context, run *provisioning) error {
	if err := validate.Struct(run.req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &models.InputValidationError{Field: verrs[0].Field(), Cause: fmt.Errorf("%s is required", verrs[0].Field())}
		}
		return &models.InputValidationError{Cause: err}
	}
	run.spec = models.JumpHostSpec{
		KeyName:         run.req.KeyName,
		SubnetID:        run.req.SubnetID,
		SecurityGroupID: run.req.SecurityGroupID,
		InstanceType:    lo.Ternary(run.req.InstanceType != "", run.req.InstanceType, p.opts.DefaultInstanceType),
	}
	return nil
}

func (p *Provisioner) validateKeyPair(ctx context.Context, run *provisioning) error {
	out, err := p.ec2.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{run.spec.KeyName},
	})
	if err != nil {
		return classify("ec2", "DescribeKeyPairs", models.KindKeyPair, run.spec.KeyName, err, codeKeyPairNotFound)
	}
	if len(out.KeyPairs) == 0 {
		return &models.NotFoundError{Kind: models.KindKeyPair, ID: run.spec.KeyName}
	}
	return nil
}

func (p *Provisioner) validateSubnet(ctx context.Context, run *provisioning) error {
	reach, err := p.classifier.Classify(ctx, run.spec.SubnetID)
	if err != nil {
		return err
	}
	if !reach.IsPublic {
		return &models.SubnetNotPublicError{SubnetID: run.spec.SubnetID, Reason: reach.Reason.String()}
	}
	run.subnet = reach
	return nil
}

// validateCacheVpc refuses to launch into a VPC the cache cluster is not in;
// reconciliation would reject such an instance anyway.
func (p *Provisioner) validateCacheVpc(ctx context.Context, run *provisioning) error {
	topo, err := p.topology.Resolve(ctx, run.req.ReplicationGroupID)
	if err != nil {
		return err
	}
	cacheVpc, err := p.topology.SubnetGroupVpc(ctx, topo.Representative.SubnetGroupName)
	if err != nil {
		return err
	}
	if run.subnet.VpcID != cacheVpc {
		return &models.VpcMismatchError{InstanceVpcID: run.subnet.VpcID, CacheVpcID: cacheVpc}
	}
	return nil
}

func (p *Provisioner) selectImage(ctx context.Context, run *provisioning) error {
	f := p.opts.Image
	out, err := p.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{f.Owner},
		Filters: []ec2types.Filter{
			{Name: aws.String("name"), Values: []string{f.NamePattern}},
			{Name: aws.String("architecture"), Values: []string{f.Architecture}},
			{Name: aws.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return &models.ProviderError{Provider: "ec2", Operation: "DescribeImages", Resource: f.NamePattern, Cause: err}
	}
	if len(out.Images) == 0 {
		return &models.NotFoundError{Kind: models.KindImage, ID: f.NamePattern}
	}
	// CreationDate is ISO 8601, so lexical order is chronological.
	newest := lo.MaxBy(out.Images, func(a, b ec2types.Image) bool {
		return aws.ToString(a.CreationDate) > aws.ToString(b.CreationDate)
	})
	run.spec.ImageID = aws.ToString(newest.ImageId)
	p.logger.Debug().Str("image", run.spec.ImageID).Str("created", aws.ToString(newest.CreationDate)).
		Msg("selected jump host image")
	return nil
}

func (p *Provisioner) launchInstance(ctx context.Context, run *provisioning) error {
	out, err := p.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(run.spec.ImageID),
		InstanceType: ec2types.InstanceType(run.spec.InstanceType),
		KeyName:      aws.String(run.spec.KeyName),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		NetworkInterfaces: []ec2types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(run.spec.SubnetID),
			Groups:                   []string{run.spec.SecurityGroupID},
			AssociatePublicIpAddress: aws.Bool(true),
		}},
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{{
				Key:   aws.String("Name"),
				Value: aws.String(utils.JumpHostName(run.req.ReplicationGroupID)),
			}},
		}},
	})
	if err != nil {
		return &models.ProviderError{Provider: "ec2", Operation: "RunInstances", Resource: run.spec.SubnetID, Cause: err}
	}
	if len(out.Instances) == 0 || aws.ToString(out.Instances[0].InstanceId) == "" {
		return &models.ProviderError{
			Provider:  "ec2",
			Operation: "RunInstances",
			Resource:  run.spec.SubnetID,
			Cause:     errors.New("no instance returned"),
		}
	}
	run.instanceID = aws.ToString(out.Instances[0].InstanceId)
	p.logger.Info().Str("instance", run.instanceID).Str("image", run.spec.ImageID).
		Str("type", run.spec.InstanceType).Str("subnet", run.spec.SubnetID).Msg("launched jump host")
	return nil
}

func (p *Provisioner) awaitAddressing(ctx context.Context, run *provisioning) error {
	ip, err := p.publicIP(ctx, run.instanceID)
	if err != nil {
		return err
	}
	if ip == "" && p.opts.AddressWait > 0 {
		waiter := ec2.NewInstanceRunningWaiter(p.ec2)
		if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{run.instanceID}}, p.opts.AddressWait); err != nil {
			p.logger.Warn().Err(err).Str("instance", run.instanceID).Msg("instance not running within address wait")
			return &models.AddressPendingError{InstanceID: run.instanceID}
		}
		if ip, err = p.publicIP(ctx, run.instanceID); err != nil {
			return err
		}
	}
	if ip == "" {
		return &models.AddressPendingError{InstanceID: run.instanceID}
	}
	run.publicIP = ip
	return nil
}

func (p *Provisioner) publicIP(ctx context.Context, instanceID string) (string, error) {
	inst, err := describeInstance(ctx, p.ec2, instanceID)
	if err != nil {
		return "", err
	}
	return aws.ToString(inst.PublicIpAddress), nil
}

func (p *Provisioner) reconcileSecurityGroups(ctx context.Context, run *provisioning) error {
	rec, err := p.reconciler.Reconcile(ctx, run.req.ReplicationGroupID, run.instanceID)
	if err != nil {
		return err
	}
	run.reconciled = rec
	return nil
}
