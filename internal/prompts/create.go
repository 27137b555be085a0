// Package prompts collects jump host creation settings interactively.
package prompts

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/hemantobora/elasticache-jumphost/internal/jumphost"
)

// askOne is replaced in tests.
var askOne = func(p survey.Prompt, response interface{}) error {
	return survey.AskOne(p, response)
}

// FillCreateRequest asks for any required field the caller left empty.
func FillCreateRequest(req *jumphost.CreateRequest) error {
	fields := []struct {
		dst     *string
		message string
		help    string
	}{
		{&req.ReplicationGroupID, "Replication group ID:", "The ElastiCache replication group the jump host will reach"},
		{&req.KeyName, "EC2 key pair name:", "Must already exist in the target region"},
		{&req.SubnetID, "Public subnet ID (e.g., subnet-xxxx):", "The subnet needs a route to an internet gateway"},
		{&req.SecurityGroupID, "Jump host security group ID (e.g., sg-xxxx):", ""},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.dst) != "" {
			continue
		}
		var v string
		if err := askOne(&survey.Input{Message: f.message, Help: f.help}, &v); err != nil {
			return fmt.Errorf("prompt %q: %w", f.message, err)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("%s is required", strings.TrimSuffix(f.message, ":"))
		}
		*f.dst = v
	}
	return nil
}

// ConfirmCreate shows what will be launched and asks to proceed.
func ConfirmCreate(req jumphost.CreateRequest, instanceType string) (bool, error) {
	var ok bool
	err := askOne(&survey.Confirm{
		Message: fmt.Sprintf("Launch a %s jump host in %s for replication group %s?",
			instanceType, req.SubnetID, req.ReplicationGroupID),
		Help:    "An EC2 instance is created and the cache security groups gain an inbound rule from " + req.SecurityGroupID,
		Default: false,
	}, &ok)
	if err != nil {
		return false, fmt.Errorf("confirm create: %w", err)
	}
	return ok, nil
}
