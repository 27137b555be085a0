package models

import (
	"encoding/json"
	"errors"
)

// Endpoint is a cache network address.
type Endpoint struct {
	Address string `json:"address"`
	Port    int32  `json:"port"`
}

// ClusterNetwork is the network attachment of a single member cache cluster.
type ClusterNetwork struct {
	ClusterID        string
	SubnetGroupName  string
	SecurityGroupIDs []string
	// Endpoint of the cluster's first node; nil when the cluster reports no
	// node with an endpoint.
	Endpoint *Endpoint
}

// ReplicationGroupTopology is derived fresh on every call and never cached.
//
// Representative holds the first member cluster, which stands in for the
// whole group when making classification decisions. Mutating steps resolve
// every member again.
type ReplicationGroupTopology struct {
	ReplicationGroupID    string
	MemberClusters        []string
	ConfigurationEndpoint *Endpoint
	Representative        ClusterNetwork
}

// PortFor returns the cache port of a member cluster. A configuration
// endpoint, when present, fixes the port for every member.
func (t *ReplicationGroupTopology) PortFor(c ClusterNetwork) int32 {
	if t.ConfigurationEndpoint != nil {
		return t.ConfigurationEndpoint.Port
	}
	if c.Endpoint != nil {
		return c.Endpoint.Port
	}
	return 0
}

// Port is the representative cache port of the group.
func (t *ReplicationGroupTopology) Port() int32 {
	return t.PortFor(t.Representative)
}

// RemoteEndpoint is the address a tunnel should forward to: the
// configuration endpoint when the group has one, else the representative
// cluster's node endpoint.
func (t *ReplicationGroupTopology) RemoteEndpoint() Endpoint {
	if t.ConfigurationEndpoint != nil {
		return *t.ConfigurationEndpoint
	}
	if t.Representative.Endpoint != nil {
		return *t.Representative.Endpoint
	}
	return Endpoint{}
}

// NetworkContext places an instance or a cache cluster in the network.
type NetworkContext struct {
	VpcID            string
	SubnetID         string
	SecurityGroupIDs []string
}

// ReachabilityReason explains a subnet classification.
type ReachabilityReason int

const (
	ReasonPrivate ReachabilityReason = iota
	ReasonInternetGatewayRoute
	ReasonDefaultSubnetInDefaultVpc
	ReasonAutoAssignPublicIPInDefaultVpc
)

func (r ReachabilityReason) String() string {
	switch r {
	case ReasonInternetGatewayRoute:
		return "has route to internet gateway"
	case ReasonDefaultSubnetInDefaultVpc:
		return "default subnet in default VPC"
	case ReasonAutoAssignPublicIPInDefaultVpc:
		return "auto-assign public IP in default VPC"
	default:
		return "no route to internet gateway found and not a default subnet in default VPC"
	}
}

// SubnetReachability is the computed public/private verdict for a subnet.
type SubnetReachability struct {
	SubnetID string
	VpcID    string
	IsPublic bool
	Reason   ReachabilityReason
}

// JumpHostSpec is the launch specification assembled during provisioning.
type JumpHostSpec struct {
	KeyName         string
	SubnetID        string
	SecurityGroupID string
	InstanceType    string
	ImageID         string
}

// JumpHost is the success record of a jump host creation.
type JumpHost struct {
	InstanceID               string `json:"InstanceId"`
	PublicIPAddress          string `json:"PublicIpAddress"`
	InstanceType             string `json:"InstanceType"`
	SubnetID                 string `json:"SubnetId"`
	SecurityGroupID          string `json:"SecurityGroupId"`
	ReplicationGroupID       string `json:"ReplicationGroupId"`
	SecurityGroupsConfigured bool   `json:"SecurityGroupsConfigured"`
	CachePort                int32  `json:"CachePort"`
	VpcID                    string `json:"VpcId"`
}

// ProvisioningResult carries exactly one of a success record or an error
// message.
type ProvisioningResult struct {
	JumpHost *JumpHost
	Error    string
}

// NewProvisioningResult builds a result from the outcome of a creation call.
// A non-nil err always wins so that no success field leaks into a failure.
func NewProvisioningResult(host *JumpHost, err error) ProvisioningResult {
	if err != nil {
		return ProvisioningResult{Error: err.Error()}
	}
	if host == nil {
		return ProvisioningResult{Error: "jump host creation returned no result"}
	}
	return ProvisioningResult{JumpHost: host}
}

// Failed reports whether the result is the failure variant.
func (r ProvisioningResult) Failed() bool {
	return r.JumpHost == nil
}

func (r ProvisioningResult) MarshalJSON() ([]byte, error) {
	if r.JumpHost == nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	return json.Marshal(r.JumpHost)
}

func (r *ProvisioningResult) UnmarshalJSON(data []byte) error {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Error != nil {
		*r = ProvisioningResult{Error: *probe.Error}
		return nil
	}
	var host JumpHost
	if err := json.Unmarshal(data, &host); err != nil {
		return err
	}
	if host.InstanceID == "" {
		return errors.New("provisioning result has neither an error nor an instance id")
	}
	*r = ProvisioningResult{JumpHost: &host}
	return nil
}

// ConnectResult reports that the network path from an existing jump host to
// a replication group has been proven.
type ConnectResult struct {
	Status                   string `json:"Status"`
	InstanceID               string `json:"InstanceId"`
	ReplicationGroupID       string `json:"ReplicationGroupId"`
	CachePort                int32  `json:"CachePort"`
	VpcID                    string `json:"VpcId"`
	SecurityGroupsConfigured bool   `json:"SecurityGroupsConfigured"`
}

// TunnelDescriptor is a ready-to-run SSH local port forward.
type TunnelDescriptor struct {
	KeyName        string `json:"keyName"`
	User           string `json:"user"`
	JumpHostDNS    string `json:"jumpHostDns"`
	LocalPort      int32  `json:"localPort"`
	RemoteEndpoint string `json:"remoteEndpoint"`
	RemotePort     int32  `json:"remotePort"`
	Command        string `json:"command"`
}
