package status

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/placebot/kit"
)

func inputSchema(properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func (s *Server) registerMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "placebot_status",
		Description: "Report the last traversal cycle (outcome, target, completion percent, attempted pixel) and per-outcome cycle counts.",
		InputSchema: inputSchema(map[string]any{}),
	}, s.status, func(json.RawMessage) (any, error) { return nil, nil })

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "placebot_cycles",
		Description: "List recent traversal cycles from the journal, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum cycles to return (default 20, max 500)"},
		}),
	}, s.cycles, decodeCycles)
}

func decodeCycles(raw json.RawMessage) (any, error) {
	var r CyclesRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
	}
	if r.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	return &r, nil
}
