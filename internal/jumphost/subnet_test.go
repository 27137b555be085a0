package jumphost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		igw          bool
		defaultForAz bool
		mapPublicIP  bool
		defaultVpc   bool
		wantPublic   bool
		wantReason   models.ReachabilityReason
		blackhole    bool
	}{
		{"igw route", true, false, false, false, true, models.ReasonInternetGatewayRoute, false},
		{"igw route wins over default subnet", true, true, true, true, true, models.ReasonInternetGatewayRoute, false},
		{"no igw plain subnet", false, false, false, false, false, models.ReasonPrivate, false},
		{"no igw plain subnet in default vpc", false, false, false, true, false, models.ReasonPrivate, false},
		{"default subnet in default vpc", false, true, false, true, true, models.ReasonDefaultSubnetInDefaultVpc, false},
		{"default subnet in custom vpc", false, true, false, false, false, models.ReasonPrivate, false},
		{"default subnet with public ip in default vpc", false, true, true, true, true, models.ReasonDefaultSubnetInDefaultVpc, false},
		{"auto-assign in default vpc", false, false, true, true, true, models.ReasonAutoAssignPublicIPInDefaultVpc, false},
		{"auto-assign in custom vpc", false, false, true, false, false, models.ReasonPrivate, false},
		{"blackholed igw route", true, false, false, false, false, models.ReasonPrivate, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeEC2()
			f.addSubnet("subnet-1", "vpc-1", tt.defaultForAz, tt.mapPublicIP)
			f.defaultVpcs["vpc-1"] = tt.defaultVpc
			if tt.igw {
				f.addRouteTable("vpc-1", "subnet-1", false, "igw-1")
				if tt.blackhole {
					f.blackholeLastRoute()
				}
			} else {
				f.addRouteTable("vpc-1", "subnet-1", false, "nat-1")
			}

			got, err := NewSubnetClassifier(f, testLogger).Classify(context.Background(), "subnet-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPublic, got.IsPublic)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, "vpc-1", got.VpcID)
			if tt.igw && !tt.blackhole {
				assert.Empty(t, f.callsTo("DescribeVpcs"))
			}
		})
	}
}

func TestClassify_MainRouteTableFallback(t *testing.T) {
	f := newFakeEC2()
	f.addSubnet("subnet-1", "vpc-1", false, false)
	f.addRouteTable("vpc-1", "", true, "igw-1")

	got, err := NewSubnetClassifier(f, testLogger).Classify(context.Background(), "subnet-1")
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
	assert.Equal(t, models.ReasonInternetGatewayRoute, got.Reason)
}

func TestClassify_ExplicitAssociationOverridesMainTable(t *testing.T) {
	f := newFakeEC2()
	f.addSubnet("subnet-1", "vpc-1", false, false)
	f.addRouteTable("vpc-1", "", true, "igw-1")
	f.addRouteTable("vpc-1", "subnet-1", false, "nat-1")

	got, err := NewSubnetClassifier(f, testLogger).Classify(context.Background(), "subnet-1")
	require.NoError(t, err)
	assert.False(t, got.IsPublic)
	assert.Equal(t, "no route to internet gateway found and not a default subnet in default VPC", got.Reason.String())
}

func TestClassify_SubnetNotFound(t *testing.T) {
	f := newFakeEC2()

	_, err := NewSubnetClassifier(f, testLogger).Classify(context.Background(), "subnet-missing")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}
