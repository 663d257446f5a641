// Package mcpserver implements the read-only protocol surface: a
// subset of internal/depengine's read operations exposed as MCP
// tools, so external GUI/editor processes can consume the dependency
// engine without embedding Go.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/packforge/depgraph/internal/depengine"
	"github.com/packforge/depgraph/internal/schema"
)

// Server wraps an *mcp.Server wired to a single depengine.Engine.
// Every tool here is read-only: nothing registered ever calls Rebuild,
// Save, Load, UpdateDB or BruteforceLocKeyOrder.
type Server struct {
	engine *depengine.Engine
	schema schema.Provider
	mcp    *mcp.Server
}

// New builds a Server and registers every tool. Callers run it with
// Start.
func New(engine *depengine.Engine, schemaProvider schema.Provider) *Server {
	s := &Server{
		engine: engine,
		schema: schemaProvider,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "packdeps-mcp-server",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Start runs the server over stdio until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "file",
		Description: "Resolve a single container path against the layered store, returning its file type, state, and layer origin.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":             {Type: "string", Description: "Container path to resolve"},
				"incl_vanilla":     {Type: "boolean", Description: "Include the vanilla-packed and vanilla-loose layers"},
				"incl_parent":      {Type: "boolean", Description: "Include the parent-mod layer"},
				"case_insensitive": {Type: "boolean", Description: "Fall back to a case-folded match"},
			},
			Required: []string{"path"},
		},
	}, s.handleFile)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "files_by_path",
		Description: "List every file whose path equals or is nested under the given container path, across every matching layer.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":             {Type: "string", Description: "Container path or folder prefix"},
				"incl_vanilla":     {Type: "boolean"},
				"incl_parent":      {Type: "boolean"},
				"case_insensitive": {Type: "boolean"},
			},
			Required: []string{"path"},
		},
	}, s.handleFilesByPath)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "db_reference_data",
		Description: "Resolve every reference/lookup column of a DB table's newest definition against the vanilla+modded store, returning column_index -> {key -> display string}.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"table_name": {Type: "string", Description: "Full table name, e.g. \"land_units_tables\""},
			},
			Required: []string{"table_name"},
		},
	}, s.handleDBReferenceData)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "loc_key_source",
		Description: "Reverse-resolve a localisation key back to the (table, field, key_parts) that would produce it.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"key": {Type: "string", Description: "Localisation key to resolve"},
			},
			Required: []string{"key"},
		},
	}, s.handleLocKeySource)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "needs_updating",
		Description: "Report whether the currently loaded store is stale relative to its declared archives.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleNeedsUpdating)
}

func createJSONResponse(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal response: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	resp, marshalErr := createJSONResponse(map[string]any{
		"success":   false,
		"operation": operation,
		"error":     err.Error(),
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	resp.IsError = true
	return resp, nil
}

type fileParams struct {
	Path            string `json:"path"`
	InclVanilla     bool   `json:"incl_vanilla"`
	InclParent      bool   `json:"incl_parent"`
	CaseInsensitive bool   `json:"case_insensitive"`
}

func (s *Server) handleFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p fileParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("file", err)
	}
	f, ok := s.engine.File(p.Path, p.InclVanilla, p.InclParent, p.CaseInsensitive)
	if !ok {
		return createJSONResponse(map[string]any{"found": false})
	}
	return createJSONResponse(map[string]any{
		"found":     true,
		"path":      f.Entry.Path,
		"file_type": f.Entry.FileType.String(),
		"state":     f.Entry.State,
		"origin":    f.Entry.ContainerOrigin,
	})
}

func (s *Server) handleFilesByPath(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p fileParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("files_by_path", err)
	}
	files := s.engine.FilesByPath(p.Path, p.InclVanilla, p.InclParent, p.CaseInsensitive)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Entry.Path)
	}
	return createJSONResponse(map[string]any{"paths": paths})
}

type tableNameParams struct {
	TableName string `json:"table_name"`
}

func (s *Server) handleDBReferenceData(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p tableNameParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("db_reference_data", err)
	}
	def, err := s.schema.DefinitionNewer(p.TableName, 0)
	if err != nil {
		return createErrorResponse("db_reference_data", err)
	}
	refs := s.engine.DBReferenceData(p.TableName, def, nil, nil)

	out := make(map[string]map[string]string, len(refs))
	for idx, tr := range refs {
		out[def.Fields[idx].Name] = tr.Data
	}
	return createJSONResponse(map[string]any{"table_name": p.TableName, "references": out})
}

type locKeyParams struct {
	Key string `json:"key"`
}

func (s *Server) handleLocKeySource(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p locKeyParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("loc_key_source", err)
	}
	match, ok := s.engine.LocKeySource(p.Key)
	if !ok {
		return createJSONResponse(map[string]any{"found": false})
	}
	return createJSONResponse(map[string]any{
		"found":     true,
		"table":     match.TableShortName,
		"field":     match.Field,
		"key_parts": match.KeyParts,
	})
}

func (s *Server) handleNeedsUpdating(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createJSONResponse(map[string]any{"needs_updating": s.engine.NeedsUpdating()})
}
