package models

import (
	"errors"
	"fmt"
)

// Resource kinds reported by NotFoundError.
const (
	KindReplicationGroup = "replication group"
	KindCacheCluster     = "cache cluster"
	KindCacheSubnetGroup = "cache subnet group"
	KindKeyPair          = "key pair"
	KindImage            = "image"
	KindSubnet           = "subnet"
	KindVpc              = "VPC"
	KindInstance         = "instance"
	KindSecurityGroup    = "security group"
	KindCacheEndpoint    = "cache endpoint"
	KindPublicDNS        = "public DNS name"
)

// NotFoundError represents a cloud resource that does not exist or is
// missing the attribute the caller needs.
type NotFoundError struct {
	Kind   string
	ID     string
	Detail string // optional, e.g. "has no member clusters"
}

func (e *NotFoundError) Error() string {
	if e.Kind == KindKeyPair && e.Detail == "" {
		return fmt.Sprintf("Key pair '%s' not found", e.ID)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s %s %s", e.Kind, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// VpcMismatchError is returned when the jump host and the cache cluster live
// in different VPCs. Security group rules are VPC scoped, so this is fatal.
type VpcMismatchError struct {
	InstanceVpcID string
	CacheVpcID    string
}

func (e *VpcMismatchError) Error() string {
	return fmt.Sprintf("EC2 instance VPC (%s) does not match replication group VPC (%s)",
		e.InstanceVpcID, e.CacheVpcID)
}

// SubnetNotPublicError is returned when a subnet fails every public test.
type SubnetNotPublicError struct {
	SubnetID string
	Reason   string
}

func (e *SubnetNotPublicError) Error() string {
	return fmt.Sprintf("Subnet %s is not public (%s). The subnet must be public to allow SSH access to the jump host.",
		e.SubnetID, e.Reason)
}

// ProviderError represents cloud provider operation errors
type ProviderError struct {
	Provider  string // "ec2", "elasticache", "sts"
	Operation string // API operation name, e.g. "DescribeSubnets"
	Resource  string // identifier the call was about
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s provider error during %s: %v", e.Provider, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s provider error during %s on resource '%s': %v",
		e.Provider, e.Operation, e.Resource, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// AddressPendingError signals that a freshly launched instance has not been
// assigned a public address yet. It is transient; describing the instance
// again later will usually succeed.
type AddressPendingError struct {
	InstanceID string
}

func (e *AddressPendingError) Error() string {
	return fmt.Sprintf("instance %s has no public IP address yet; describe it again once it is running", e.InstanceID)
}

// LaunchedInstanceError wraps a failure that happened after an instance was
// launched. The instance is left running and the caller owns its cleanup.
type LaunchedInstanceError struct {
	InstanceID string
	Cause      error
}

func (e *LaunchedInstanceError) Error() string {
	return fmt.Sprintf("jump host %s was launched but is not usable (terminate it manually if it is not needed): %v",
		e.InstanceID, e.Cause)
}

func (e *LaunchedInstanceError) Unwrap() error {
	return e.Cause
}

// InputValidationError represents caller input that failed validation before
// any cloud call was made.
type InputValidationError struct {
	Field string
	Cause error
}

func (e *InputValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %v", e.Cause)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Cause)
}

func (e *InputValidationError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsVpcMismatch reports whether err (or anything it wraps) is a VpcMismatchError.
func IsVpcMismatch(err error) bool {
	var vm *VpcMismatchError
	return errors.As(err, &vm)
}
