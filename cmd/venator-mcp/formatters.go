package main

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ternarybob/venator/internal/services/tools"
)

// formatEnvelope serializes a tool envelope as the MCP text result.
// Failed envelopes are flagged IsError but still carry structured detail.
func formatEnvelope(env *tools.Envelope) *mcp.CallToolResult {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fallback := &tools.Envelope{
			Success: false,
			Error:   &tools.ErrorBody{Kind: "internal", Message: "result serialization failed"},
			Credits: env.Credits,
		}
		data, _ = json.MarshalIndent(fallback, "", "  ")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !env.Success,
	}
}
