// Package aws builds the AWS clients the jump host tooling talks to.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

const defaultRegion = "us-east-1"

// Provider holds AWS-specific clients and config
type Provider struct {
	region            string
	AWSConfig         aws.Config
	EC2Client         *ec2.Client
	ElastiCacheClient *elasticache.Client
	STSClient         *sts.Client
}

// ProviderOption is a functional option for provider configuration
type ProviderOption func(*providerOptions)

type providerOptions struct {
	profile string
	region  string
}

// WithRegion specifies the AWS region
func WithRegion(region string) ProviderOption {
	return func(o *providerOptions) {
		o.region = region
	}
}

// WithProfile specifies the AWS profile to use
func WithProfile(profile string) ProviderOption {
	return func(o *providerOptions) {
		o.profile = profile
	}
}

// loadAWSConfig loads AWS configuration with optional profile
func loadAWSConfig(ctx context.Context, opts *providerOptions) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{}
	if opts.profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(opts.profile))
	}
	if opts.region != "" {
		optFns = append(optFns, config.WithRegion(opts.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, &models.ProviderError{
			Provider:  "aws",
			Operation: "load-config",
			Resource:  fmt.Sprintf("profile:%s", opts.profile),
			Cause:     fmt.Errorf("failed to load AWS config: %w", err),
		}
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	return cfg, nil
}

// NewProvider loads AWS configuration and creates the EC2, ElastiCache and
// STS clients.
func NewProvider(ctx context.Context, options ...ProviderOption) (*Provider, error) {
	opts := &providerOptions{}
	for _, opt := range options {
		opt(opts)
	}

	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewProviderFromConfig(cfg), nil
}

// NewProviderFromConfig creates the clients from an already loaded config.
func NewProviderFromConfig(cfg aws.Config) *Provider {
	return &Provider{
		region:            cfg.Region,
		AWSConfig:         cfg,
		EC2Client:         ec2.NewFromConfig(cfg),
		ElastiCacheClient: elasticache.NewFromConfig(cfg),
		STSClient:         sts.NewFromConfig(cfg),
	}
}

// ValidateCredentials checks that the configured credentials work and
// returns the caller ARN.
func (p *Provider) ValidateCredentials(ctx context.Context) (string, error) {
	out, err := p.STSClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", &models.ProviderError{
			Provider:  "sts",
			Operation: "GetCallerIdentity",
			Cause:     err,
		}
	}
	return aws.ToString(out.Arn), nil
}

// GetRegion returns the region the clients are bound to.
func (p *Provider) GetRegion() string {
	return p.region
}
