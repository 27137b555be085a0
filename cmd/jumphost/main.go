package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "jumphost",
		Usage:   "Reach private ElastiCache replication groups through an EC2 jump host",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML settings file",
				EnvVars: []string{"JUMPHOST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "AWS credential profile name (e.g., dev, prod)",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "AWS region (default from profile, then us-east-1)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn, error or disabled",
			},
			&cli.StringFlag{
				Name:  "key-dir",
				Usage: "Directory holding <key-name>.pem files, used in SSH commands",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "Allow an existing EC2 instance into a replication group's security groups",
				Flags:  targetFlags(),
				Action: connectCommand,
			},
			{
				Name:  "create",
				Usage: "Launch a jump host in a public subnet and allow it into a replication group",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "replication-group", Aliases: []string{"rg"}, Usage: "ElastiCache replication group ID"},
					&cli.StringFlag{Name: "key-name", Usage: "EC2 key pair name"},
					&cli.StringFlag{Name: "subnet", Usage: "Public subnet ID"},
					&cli.StringFlag{Name: "security-group", Usage: "Security group ID for the jump host"},
					&cli.StringFlag{Name: "instance-type", Usage: "EC2 instance type (default from settings)"},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip prompts; every ID must be given as a flag"},
				},
				Action: createCommand,
			},
			{
				Name:   "tunnel",
				Usage:  "Print the SSH port-forward command for a replication group",
				Flags:  targetFlags(),
				Action: tunnelCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the jump host tools over MCP on stdin/stdout",
				Action: mcpCommand,
			},
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}
}

// targetFlags are the flags naming an existing jump host and its cache.
func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "replication-group",
			Aliases:  []string{"rg"},
			Usage:    "ElastiCache replication group ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "instance",
			Aliases:  []string{"i"},
			Usage:    "EC2 jump host instance ID",
			Required: true,
		},
	}
}
