package jumphost

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

var testLogger = zerolog.New(io.Discard)

// fakeEC2 is an in-memory EC2 control plane. It records every call as
// "Operation" or "Operation:resource" in calls.
type fakeEC2 struct {
	calls []string

	keyPairs       map[string]bool
	subnets        map[string]ec2types.Subnet
	routeTables    []ec2types.RouteTable
	defaultVpcs    map[string]bool
	images         []ec2types.Image
	instances      map[string]ec2types.Instance
	securityGroups map[string]*ec2types.SecurityGroup

	// launchedID and launchedIP describe the instance RunInstances creates.
	launchedID string
	launchedIP string
	runInput   *ec2.RunInstancesInput

	// authorizeErr forces AuthorizeSecurityGroupIngress to fail per group.
	authorizeErr map[string]error
	// hideRules makes DescribeSecurityGroups report no permissions.
	hideRules bool
}

func newFakeEC2() *fakeEC2 {
	return &fakeEC2{
		keyPairs:       map[string]bool{},
		subnets:        map[string]ec2types.Subnet{},
		defaultVpcs:    map[string]bool{},
		instances:      map[string]ec2types.Instance{},
		securityGroups: map[string]*ec2types.SecurityGroup{},
		authorizeErr:   map[string]error{},
		launchedID:     "i-new",
		launchedIP:     "1.2.3.4",
	}
}

func (f *fakeEC2) record(op string, resource ...string) {
	if len(resource) == 0 {
		f.calls = append(f.calls, op)
		return
	}
	f.calls = append(f.calls, op+":"+strings.Join(resource, ","))
}

// callsTo returns the recorded calls for one operation, resources only.
func (f *fakeEC2) callsTo(op string) []string {
	return callsTo(f.calls, op)
}

func callsTo(calls []string, op string) []string {
	out := []string{}
	for _, c := range calls {
		if c == op {
			out = append(out, "")
		} else if strings.HasPrefix(c, op+":") {
			out = append(out, strings.TrimPrefix(c, op+":"))
		}
	}
	return out
}

func (f *fakeEC2) addSecurityGroup(id, vpc string) {
	f.securityGroups[id] = &ec2types.SecurityGroup{GroupId: aws.String(id), VpcId: aws.String(vpc)}
}

func (f *fakeEC2) addInstance(id, vpc string, groups ...string) {
	f.instances[id] = ec2types.Instance{
		InstanceId: aws.String(id),
		VpcId:      aws.String(vpc),
		SecurityGroups: lo.Map(groups, func(g string, _ int) ec2types.GroupIdentifier {
			return ec2types.GroupIdentifier{GroupId: aws.String(g)}
		}),
	}
}

func (f *fakeEC2) addSubnet(id, vpc string, defaultForAz, mapPublicIP bool) {
	f.subnets[id] = ec2types.Subnet{
		SubnetId:            aws.String(id),
		VpcId:               aws.String(vpc),
		DefaultForAz:        aws.Bool(defaultForAz),
		MapPublicIpOnLaunch: aws.Bool(mapPublicIP),
	}
}

// addRouteTable associates a route table with subnet ("" for none) and
// optionally marks it main for vpc.
func (f *fakeEC2) addRouteTable(vpc, subnet string, main bool, gateways ...string) {
	rt := ec2types.RouteTable{VpcId: aws.String(vpc)}
	rt.Routes = append(rt.Routes, ec2types.Route{GatewayId: aws.String("local")})
	for _, gw := range gateways {
		rt.Routes = append(rt.Routes, ec2types.Route{GatewayId: aws.String(gw)})
	}
	if subnet != "" {
		rt.Associations = append(rt.Associations, ec2types.RouteTableAssociation{SubnetId: aws.String(subnet)})
	}
	if main {
		rt.Associations = append(rt.Associations, ec2types.RouteTableAssociation{Main: aws.Bool(true)})
	}
	f.routeTables = append(f.routeTables, rt)
}

// blackholeLastRoute marks the newest route of the newest table as blackholed.
func (f *fakeEC2) blackholeLastRoute() {
	rt := &f.routeTables[len(f.routeTables)-1]
	rt.Routes[len(rt.Routes)-1].State = ec2types.RouteStateBlackhole
}

func (f *fakeEC2) DescribeKeyPairs(_ context.Context, in *ec2.DescribeKeyPairsInput, _ ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	f.record("DescribeKeyPairs", in.KeyNames...)
	out := &ec2.DescribeKeyPairsOutput{}
	for _, name := range in.KeyNames {
		if !f.keyPairs[name] {
			return nil, apiError(codeKeyPairNotFound)
		}
		out.KeyPairs = append(out.KeyPairs, ec2types.KeyPairInfo{KeyName: aws.String(name)})
	}
	return out, nil
}

func (f *fakeEC2) DescribeSubnets(_ context.Context, in *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	f.record("DescribeSubnets", in.SubnetIds...)
	out := &ec2.DescribeSubnetsOutput{}
	for _, id := range in.SubnetIds {
		s, ok := f.subnets[id]
		if !ok {
			return nil, apiError(codeSubnetNotFound)
		}
		out.Subnets = append(out.Subnets, s)
	}
	return out, nil
}

func (f *fakeEC2) DescribeRouteTables(_ context.Context, in *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	f.record("DescribeRouteTables")
	filters := map[string]string{}
	for _, flt := range in.Filters {
		filters[aws.ToString(flt.Name)] = flt.Values[0]
	}
	out := &ec2.DescribeRouteTablesOutput{}
	for _, rt := range f.routeTables {
		if subnet, ok := filters["association.subnet-id"]; ok {
			if lo.SomeBy(rt.Associations, func(a ec2types.RouteTableAssociation) bool {
				return aws.ToString(a.SubnetId) == subnet
			}) {
				out.RouteTables = append(out.RouteTables, rt)
			}
			continue
		}
		if aws.ToString(rt.VpcId) != filters["vpc-id"] {
			continue
		}
		if filters["association.main"] == "true" && !lo.SomeBy(rt.Associations, func(a ec2types.RouteTableAssociation) bool {
			return aws.ToBool(a.Main)
		}) {
			continue
		}
		out.RouteTables = append(out.RouteTables, rt)
	}
	return out, nil
}

func (f *fakeEC2) DescribeVpcs(_ context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	f.record("DescribeVpcs", in.VpcIds...)
	out := &ec2.DescribeVpcsOutput{}
	for _, id := range in.VpcIds {
		out.Vpcs = append(out.Vpcs, ec2types.Vpc{VpcId: aws.String(id), IsDefault: aws.Bool(f.defaultVpcs[id])})
	}
	return out, nil
}

func (f *fakeEC2) DescribeImages(_ context.Context, _ *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.record("DescribeImages")
	return &ec2.DescribeImagesOutput{Images: f.images}, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.record("DescribeInstances", in.InstanceIds...)
	out := &ec2.DescribeInstancesOutput{}
	for _, id := range in.InstanceIds {
		inst, ok := f.instances[id]
		if !ok {
			return nil, apiError(codeInstanceNotFound)
		}
		out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{inst}})
	}
	return out, nil
}

func (f *fakeEC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.record("RunInstances")
	f.runInput = in
	nic := in.NetworkInterfaces[0]
	subnet := f.subnets[aws.ToString(nic.SubnetId)]
	f.addInstance(f.launchedID, aws.ToString(subnet.VpcId), nic.Groups...)
	inst := f.instances[f.launchedID]
	if f.launchedIP != "" {
		inst.PublicIpAddress = aws.String(f.launchedIP)
	}
	inst.KeyName = in.KeyName
	f.instances[f.launchedID] = inst
	return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: aws.String(f.launchedID)}}}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	f.record("DescribeSecurityGroups", in.GroupIds...)
	out := &ec2.DescribeSecurityGroupsOutput{}
	for _, id := range in.GroupIds {
		sg, ok := f.securityGroups[id]
		if !ok {
			return nil, apiError(codeSecurityGroupNotFound)
		}
		cp := *sg
		if f.hideRules {
			cp.IpPermissions = nil
		}
		out.SecurityGroups = append(out.SecurityGroups, cp)
	}
	return out, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	id := aws.ToString(in.GroupId)
	f.record("AuthorizeSecurityGroupIngress", id)
	if err := f.authorizeErr[id]; err != nil {
		return nil, err
	}
	sg, ok := f.securityGroups[id]
	if !ok {
		return nil, apiError(codeSecurityGroupNotFound)
	}
	for _, p := range in.IpPermissions {
		for _, pair := range p.UserIdGroupPairs {
			if lo.SomeBy(sg.IpPermissions, func(existing ec2types.IpPermission) bool {
				return permissionAllows(existing, aws.ToString(pair.GroupId), aws.ToInt32(p.FromPort))
			}) {
				return nil, apiError(codeDuplicatePermission)
			}
		}
		sg.IpPermissions = append(sg.IpPermissions, p)
	}
	return &ec2.AuthorizeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

// fakeElastiCache is an in-memory ElastiCache control plane.
type fakeElastiCache struct {
	calls        []string
	groups       map[string]ectypes.ReplicationGroup
	clusters     map[string]ectypes.CacheCluster
	subnetGroups map[string]string
}

func newFakeElastiCache() *fakeElastiCache {
	return &fakeElastiCache{
		groups:       map[string]ectypes.ReplicationGroup{},
		clusters:     map[string]ectypes.CacheCluster{},
		subnetGroups: map[string]string{},
	}
}

func (f *fakeElastiCache) addCluster(id, subnetGroup, securityGroup, address string, port int32) {
	c := ectypes.CacheCluster{
		CacheClusterId:       aws.String(id),
		CacheSubnetGroupName: aws.String(subnetGroup),
	}
	if securityGroup != "" {
		c.SecurityGroups = []ectypes.SecurityGroupMembership{{SecurityGroupId: aws.String(securityGroup)}}
	}
	if address != "" {
		c.CacheNodes = []ectypes.CacheNode{{
			Endpoint: &ectypes.Endpoint{Address: aws.String(address), Port: aws.Int32(port)},
		}}
	}
	f.clusters[id] = c
}

func (f *fakeElastiCache) addGroup(id string, config *ectypes.Endpoint, members ...string) {
	f.groups[id] = ectypes.ReplicationGroup{
		ReplicationGroupId:    aws.String(id),
		MemberClusters:        members,
		ConfigurationEndpoint: config,
	}
}

func (f *fakeElastiCache) DescribeReplicationGroups(_ context.Context, in *elasticache.DescribeReplicationGroupsInput, _ ...func(*elasticache.Options)) (*elasticache.DescribeReplicationGroupsOutput, error) {
	id := aws.ToString(in.ReplicationGroupId)
	f.calls = append(f.calls, "DescribeReplicationGroups:"+id)
	g, ok := f.groups[id]
	if !ok {
		return nil, apiError(codeReplicationGroupNotFound)
	}
	return &elasticache.DescribeReplicationGroupsOutput{ReplicationGroups: []ectypes.ReplicationGroup{g}}, nil
}

func (f *fakeElastiCache) DescribeCacheClusters(_ context.Context, in *elasticache.DescribeCacheClustersInput, _ ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error) {
	id := aws.ToString(in.CacheClusterId)
	f.calls = append(f.calls, "DescribeCacheClusters:"+id)
	c, ok := f.clusters[id]
	if !ok {
		return nil, apiError(codeCacheClusterNotFound)
	}
	if !aws.ToBool(in.ShowCacheNodeInfo) {
		c.CacheNodes = nil
	}
	return &elasticache.DescribeCacheClustersOutput{CacheClusters: []ectypes.CacheCluster{c}}, nil
}

func (f *fakeElastiCache) DescribeCacheSubnetGroups(_ context.Context, in *elasticache.DescribeCacheSubnetGroupsInput, _ ...func(*elasticache.Options)) (*elasticache.DescribeCacheSubnetGroupsOutput, error) {
	name := aws.ToString(in.CacheSubnetGroupName)
	f.calls = append(f.calls, "DescribeCacheSubnetGroups:"+name)
	vpc, ok := f.subnetGroups[name]
	if !ok {
		return nil, apiError(codeCacheSubnetGroupNotFound)
	}
	return &elasticache.DescribeCacheSubnetGroupsOutput{
		CacheSubnetGroups: []ectypes.CacheSubnetGroup{{CacheSubnetGroupName: aws.String(name), VpcId: aws.String(vpc)}},
	}, nil
}

// cloud is the standard fixture: replication group rg-test with n member
// clusters (cluster-1..n, each behind sg-cache-i, port 6379) in vpc-123, a
// jump host i-123 in vpc-123 behind sg-jump, a public subnet, a key pair
// and two images.
type cloud struct {
	ec2   *fakeEC2
	cache *fakeElastiCache
}

func newCloud(n int) *cloud {
	c := &cloud{ec2: newFakeEC2(), cache: newFakeElastiCache()}

	c.cache.subnetGroups["subnet-group-1"] = "vpc-123"
	members := make([]string, n)
	for i := range members {
		id := fmt.Sprintf("cluster-%d", i+1)
		sg := fmt.Sprintf("sg-cache-%d", i+1)
		members[i] = id
		c.cache.addCluster(id, "subnet-group-1", sg, id+".cache.example", 6379)
		c.ec2.addSecurityGroup(sg, "vpc-123")
	}
	c.cache.addGroup("rg-test", nil, members...)

	c.ec2.addSecurityGroup("sg-jump", "vpc-123")
	c.ec2.addInstance("i-123", "vpc-123", "sg-jump")
	c.ec2.keyPairs["test-key"] = true
	c.ec2.addSubnet("subnet-123", "vpc-123", false, false)
	c.ec2.addRouteTable("vpc-123", "subnet-123", false, "igw-123")
	c.ec2.images = []ec2types.Image{
		{ImageId: aws.String("ami-old"), CreationDate: aws.String("2023-01-01T00:00:00.000Z")},
		{ImageId: aws.String("ami-new"), CreationDate: aws.String("2024-06-01T00:00:00.000Z")},
		{ImageId: aws.String("ami-mid"), CreationDate: aws.String("2023-09-01T00:00:00.000Z")},
	}
	return c
}

func (c *cloud) topology() *TopologyResolver {
	return NewTopologyResolver(c.cache, testLogger)
}

func (c *cloud) reconciler() *Reconciler {
	return NewReconciler(c.ec2, c.topology(), testLogger)
}

func (c *cloud) service(opts Options) *Service {
	return NewService(c.ec2, c.cache, opts, testLogger)
}
