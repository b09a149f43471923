package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes every registered tool over MCP. Each tool takes a
// single required ticket_id argument.
func NewMCPServer(registry *Registry, version string) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"itsm-agent",
		version,
		mcpserver.WithRecovery(),
		mcpserver.WithToolCapabilities(false),
	)

	for _, t := range registry.Tools() {
		srv.AddTool(
			mcp.NewTool(t.Name(),
				mcp.WithDescription(t.Description()),
				mcp.WithString("ticket_id",
					mcp.Description("Ticket identifier, e.g. TKT-12345"),
					mcp.Required(),
				),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			toolHandler(t),
		)
	}
	return srv
}

func toolHandler(t Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticketID, err := request.RequireString("ticket_id")
		if err != nil {
			return mcp.NewToolResultError("missing required argument: ticket_id"), nil
		}

		out, err := t.Call(ctx, ticketID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", t.Name(), err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
