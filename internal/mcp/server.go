// Package mcp exposes the Query Surface as an MCP server so editor
// agents can read the live dependency graph over stdio. Grounded on the
// teacher's internal/mcp/server.go registerTools()/AddTool pattern,
// narrowed to the seven read-only operations of SPEC_FULL.md §4.6.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/graphsyncd/internal/query"
	"github.com/standardbeagle/graphsyncd/internal/types"
	"github.com/standardbeagle/graphsyncd/internal/version"
)

// Server wraps an mcp.Server bound to a Query Surface.
type Server struct {
	server  *mcp.Server
	surface *query.Surface
}

// NewServer builds an MCP server exposing list_nodes, get_node,
// search_nodes, edges_for, nodes_for_file, callers_of and callees_of.
func NewServer(surface *query.Surface) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "graphsyncd",
			Version: version.Version,
		}, nil),
		surface: surface,
	}
	s.registerTools()
	return s
}

// Run serves the MCP protocol over stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "list_nodes",
		Description: "List graph nodes, optionally filtered by kind (module, class, function, import, call, variable).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"kind":  {Type: "string", Description: "Node kind filter; omit for all kinds"},
				"limit": {Type: "integer", Description: "Maximum results; omit for unbounded"},
			},
		},
	}, s.handleListNodes)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_node",
		Description: "Fetch a single node by its id.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"id": {Type: "string", Description: "Node id, e.g. function:mod.name"}},
			Required:   []string{"id"},
		},
	}, s.handleGetNode)

	s.server.AddTool(&mcp.Tool{
		Name:        "search_nodes",
		Description: "Case-insensitive substring search over node id and filepath.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"substring": {Type: "string"},
				"limit":     {Type: "integer"},
			},
			Required: []string{"substring"},
		},
	}, s.handleSearchNodes)

	s.server.AddTool(&mcp.Tool{
		Name:        "edges_for",
		Description: "List edges incident to a node id, in a given direction (in, out, both).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id":        {Type: "string"},
				"direction": {Type: "string", Description: "in, out, or both (default both)"},
			},
			Required: []string{"id"},
		},
	}, s.handleEdgesFor)

	s.server.AddTool(&mcp.Tool{
		Name:        "nodes_for_file",
		Description: "List the nodes a file's most recent parse produced.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}, s.handleNodesForFile)

	s.server.AddTool(&mcp.Tool{
		Name:        "callers_of",
		Description: "List nodes with a calls edge targeting the given function id.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id":    {Type: "string"},
				"limit": {Type: "integer"},
			},
			Required: []string{"id"},
		},
	}, s.handleCallersOf)

	s.server.AddTool(&mcp.Tool{
		Name:        "callees_of",
		Description: "List nodes targeted by a calls edge from the given function id.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id":    {Type: "string"},
				"limit": {Type: "integer"},
			},
			Required: []string{"id"},
		},
	}, s.handleCalleesOf)
}

type listNodesParams struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit"`
}

func (s *Server) handleListNodes(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p listNodesParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	nodes := s.surface.ListNodes(query.Filter{Kind: types.Kind(p.Kind)}, p.Limit)
	return jsonResult(nodes)
}

type idParams struct {
	ID string `json:"id"`
}

func (s *Server) handleGetNode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p idParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return jsonResult(s.surface.GetNode(p.ID))
}

type searchParams struct {
	Substring string `json:"substring"`
	Limit     int    `json:"limit"`
}

func (s *Server) handleSearchNodes(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p searchParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return jsonResult(s.surface.SearchNodes(p.Substring, p.Limit))
}

type edgesForParams struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
}

func (s *Server) handleEdgesFor(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p edgesForParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	dir := query.DirBoth
	switch p.Direction {
	case "in":
		dir = query.DirIn
	case "out":
		dir = query.DirOut
	}
	return jsonResult(s.surface.EdgesFor(p.ID, dir))
}

type pathParams struct {
	Path string `json:"path"`
}

func (s *Server) handleNodesForFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p pathParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return jsonResult(s.surface.NodesForFile(p.Path))
}

type idLimitParams struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

func (s *Server) handleCallersOf(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p idLimitParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return jsonResult(s.surface.CallersOf(p.ID, p.Limit))
}

func (s *Server) handleCalleesOf(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p idLimitParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return jsonResult(s.surface.CalleesOf(p.ID, p.Limit))
}

// jsonResult marshals data as the tool's text content, matching the
// teacher's createJSONResponse helper.
func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}
