package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	awsprovider "github.com/hemantobora/elasticache-jumphost/internal/cloud/aws"
	"github.com/hemantobora/elasticache-jumphost/internal/config"
	"github.com/hemantobora/elasticache-jumphost/internal/jumphost"
	"github.com/hemantobora/elasticache-jumphost/internal/logging"
	"github.com/hemantobora/elasticache-jumphost/internal/mcpserver"
	"github.com/hemantobora/elasticache-jumphost/internal/progress"
	"github.com/hemantobora/elasticache-jumphost/internal/prompts"
	"github.com/hemantobora/elasticache-jumphost/internal/utils"
)

// session is what every command needs after settings are resolved.
type session struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// newOperations connects to AWS. Tests replace it with a fake.
var newOperations = func(ctx context.Context, s *session, onState func(string)) (mcpserver.Operations, error) {
	provider, err := awsprovider.NewProvider(ctx,
		awsprovider.WithProfile(s.cfg.Profile),
		awsprovider.WithRegion(s.cfg.Region),
	)
	if err != nil {
		return nil, err
	}
	arn, err := provider.ValidateCredentials(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("caller", arn).Str("region", provider.GetRegion()).Msg("AWS credentials validated")

	return jumphost.NewService(provider.EC2Client, provider.ElastiCacheClient, jumphost.Options{
		Provisioner: jumphost.ProvisionerOptions{
			DefaultInstanceType: s.cfg.InstanceType,
			Image: jumphost.ImageFilter{
				Owner:        s.cfg.Image.Owner,
				NamePattern:  s.cfg.Image.NamePattern,
				Architecture: s.cfg.Image.Architecture,
			},
			AddressWait: s.cfg.AddressWait,
			OnState:     onState,
		},
		KeyDir: s.cfg.KeyDir,
	}, s.logger), nil
}

// loadSession merges the settings file, environment and global flags.
func loadSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	for flag, dst := range map[string]*string{
		"profile":   &cfg.Profile,
		"region":    &cfg.Region,
		"log-level": &cfg.LogLevel,
		"key-dir":   &cfg.KeyDir,
	} {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logging.New(cfg.LogLevel, c.App.ErrWriter)}, nil
}

func connectCommand(c *cli.Context) error {
	s, err := loadSession(c)
	if err != nil {
		return err
	}
	ops, err := newOperations(c.Context, s, nil)
	if err != nil {
		return err
	}
	res, err := ops.Connect(c.Context, c.String("replication-group"), c.String("instance"))
	if err != nil {
		return err
	}
	return utils.WriteJSON(c.App.Writer, res)
}

func tunnelCommand(c *cli.Context) error {
	s, err := loadSession(c)
	if err != nil {
		return err
	}
	ops, err := newOperations(c.Context, s, nil)
	if err != nil {
		return err
	}
	res, err := ops.GetTunnelCommand(c.Context, c.String("replication-group"), c.String("instance"))
	if err != nil {
		return err
	}
	return utils.WriteJSON(c.App.Writer, res)
}

func createCommand(c *cli.Context) error {
	s, err := loadSession(c)
	if err != nil {
		return err
	}
	req := jumphost.CreateRequest{
		ReplicationGroupID: c.String("replication-group"),
		KeyName:            c.String("key-name"),
		SubnetID:           c.String("subnet"),
		SecurityGroupID:    c.String("security-group"),
		InstanceType:       c.String("instance-type"),
	}
	if !c.Bool("yes") {
		if err := prompts.FillCreateRequest(&req); err != nil {
			return err
		}
		instanceType := req.InstanceType
		if instanceType == "" {
			instanceType = s.cfg.InstanceType
		}
		ok, err := prompts.ConfirmCreate(req, instanceType)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.App.ErrWriter, "Aborted; nothing was created.")
			return nil
		}
	}

	spinner := progress.New(c.App.ErrWriter, "Preparing jump host")
	ops, err := newOperations(c.Context, s, func(state string) {
		spinner.Update("Provisioning jump host: " + state)
	})
	if err != nil {
		return err
	}
	spinner.Start()
	res := ops.CreateJumpHost(c.Context, req)
	spinner.Stop()

	if err := utils.WriteJSON(c.App.Writer, res); err != nil {
		return err
	}
	if res.Failed() {
		return cli.Exit("", 1)
	}
	return nil
}

func mcpCommand(c *cli.Context) error {
	s, err := loadSession(c)
	if err != nil {
		return err
	}
	ops, err := newOperations(c.Context, s, nil)
	if err != nil {
		return err
	}
	s.logger.Info().Msg("serving MCP on stdio")
	return mcpserver.New(ops, c.App.Version, s.logger).ServeStdio()
}
