// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/mxcp-auth/pkg/auth/execctx"
	"github.com/stacklok/mxcp-auth/pkg/auth/middleware"
	"github.com/stacklok/mxcp-auth/pkg/versions"
)

// mcpEndpoint is where the MCP streamable HTTP transport is mounted.
const mcpEndpoint = "/mcp"

type whoamiResult struct {
	Authenticated bool     `json:"authenticated"`
	Provider      string   `json:"provider,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
}

func newMCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		serviceName,
		versions.GetVersionInfo().Version,
		server.WithToolCapabilities(false),
	)
	s.AddTool(mcp.NewTool("whoami",
		mcp.WithDescription("Describe the signed-in user of this MCP session"),
		mcp.WithReadOnlyHintAnnotation(true),
	), whoami)
	return s
}

// whoami reads the user through the zero-argument accessors, the same way
// generated SQL functions do.
func whoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := execctx.Bind(ctx)
	res := whoamiResult{
		Provider: user.UserProvider(),
		UserID:   user.UserID(),
		Username: user.Username(),
		Email:    user.UserEmail(),
	}
	if uc := execctx.UserContextFrom(ctx); uc != nil {
		res.Authenticated = true
		res.Scopes = uc.Scopes
	}

	text := "anonymous"
	if res.Authenticated {
		text = fmt.Sprintf("%s (%s via %s)", res.Username, res.UserID, res.Provider)
	}
	return mcp.NewToolResultStructured(res, text), nil
}

func newMCPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s,
		server.WithEndpointPath(mcpEndpoint),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(middleware.HTTPContextFunc),
	)
}
