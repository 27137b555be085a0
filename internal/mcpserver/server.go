// Package mcpserver exposes the jump host operations as Model Context
// Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/hemantobora/elasticache-jumphost/internal/jumphost"
	"github.com/hemantobora/elasticache-jumphost/internal/models"
)

// Tool names.
const (
	ToolConnect = "connect-jump-host-rg"
	ToolCreate  = "create-jump-host-rg"
	ToolTunnel  = "get-ssh-tunnel-command-rg"
)

// Operations is what the tools call into. *jumphost.Service implements it.
type Operations interface {
	Connect(ctx context.Context, replicationGroupID, instanceID string) (*models.ConnectResult, error)
	CreateJumpHost(ctx context.Context, req jumphost.CreateRequest) models.ProvisioningResult
	GetTunnelCommand(ctx context.Context, replicationGroupID, instanceID string) (*models.TunnelDescriptor, error)
}

var _ Operations = (*jumphost.Service)(nil)

// Server wraps the MCP server and its tool handlers.
type Server struct {
	mcp    *server.MCPServer
	ops    Operations
	logger zerolog.Logger
}

// New registers the jump host tools on a fresh MCP server.
func New(ops Operations, version string, logger zerolog.Logger) *Server {
	s := &Server{ops: ops, logger: logger}
	s.mcp = server.NewMCPServer(
		"elasticache-jumphost",
		version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Create EC2 jump hosts for ElastiCache replication groups, "+
			"configure their security groups, and produce SSH tunnel commands."),
	)
	for _, t := range s.Tools() {
		s.mcp.AddTool(t.Tool, t.Handler)
	}
	return s
}

// Tools returns the tool definitions with their handlers.
func (s *Server) Tools() []server.ServerTool {
	rg := mcp.WithString("replication_group_id", mcp.Required(),
		mcp.Description("ID of the ElastiCache replication group"))
	instance := mcp.WithString("instance_id", mcp.Required(),
		mcp.Description("ID of the EC2 jump host instance"))

	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolConnect,
				mcp.WithDescription("Configure security groups so an existing EC2 instance can reach a replication group. "+
					"The instance and the cache must be in the same VPC."),
				rg, instance,
				mcp.WithIdempotentHintAnnotation(true),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: s.handleConnect,
		},
		{
			Tool: mcp.NewTool(ToolCreate,
				mcp.WithDescription("Launch an EC2 jump host in a public subnet and allow it into a replication group."),
				rg,
				mcp.WithString("key_name", mcp.Required(), mcp.Description("EC2 key pair name for SSH access")),
				mcp.WithString("subnet_id", mcp.Required(), mcp.Description("Public subnet to launch into")),
				mcp.WithString("security_group_id", mcp.Required(), mcp.Description("Security group for the jump host")),
				mcp.WithString("instance_type", mcp.Description("EC2 instance type (default "+jumphost.DefaultInstanceType+")")),
				mcp.WithIdempotentHintAnnotation(false),
				mcp.WithDestructiveHintAnnotation(false),
			),
			Handler: s.handleCreate,
		},
		{
			Tool: mcp.NewTool(ToolTunnel,
				mcp.WithDescription("Build the SSH port-forward command for reaching a replication group through a jump host."),
				rg, instance,
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.handleTunnel,
		},
	}
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := stringArgs(req, "replication_group_id", "instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.ops.Connect(ctx, args["replication_group_id"], args["instance_id"])
	if err != nil {
		return s.toolError(ToolConnect, err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := stringArgs(req, "replication_group_id", "key_name", "subnet_id", "security_group_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	instanceType, _ := req.GetArguments()["instance_type"].(string)
	res := s.ops.CreateJumpHost(ctx, jumphost.CreateRequest{
		ReplicationGroupID: args["replication_group_id"],
		KeyName:            args["key_name"],
		SubnetID:           args["subnet_id"],
		SecurityGroupID:    args["security_group_id"],
		InstanceType:       instanceType,
	})
	if res.Failed() {
		s.logger.Warn().Str("tool", ToolCreate).Str("error", res.Error).Msg("tool call failed")
	}
	// The failure variant is still a well-formed {"error": ...} document.
	return jsonResult(res)
}

func (s *Server) handleTunnel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := stringArgs(req, "replication_group_id", "instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.ops.GetTunnelCommand(ctx, args["replication_group_id"], args["instance_id"])
	if err != nil {
		return s.toolError(ToolTunnel, err), nil
	}
	return jsonResult(res)
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn().Err(err).Str("tool", tool).Msg("tool call failed")
	return mcp.NewToolResultError(err.Error())
}

// stringArgs extracts required, non-empty string arguments.
func stringArgs(req mcp.CallToolRequest, names ...string) (map[string]string, error) {
	args := req.GetArguments()
	out := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v, _ := args[name].(string)
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
			continue
		}
		out[name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
