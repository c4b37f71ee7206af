package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"intake-pipeline/backend/internal/services"
	"intake-pipeline/backend/pkg/models"
)

// PipelineOps is the slice of the service layer exposed as tools.
type PipelineOps interface {
	Query(ctx context.Context, rawID string) (models.StatusView, error)
	Retry(ctx context.Context, rawID string) (*services.InvocationResult, error)
	Regenerate(ctx context.Context, rawID string, documentTypes []string, trigger string) (*services.RegenerationResult, error)
}

// TriggerMCP marks regenerations requested through a tool call.
const TriggerMCP = "mcp"

type Server struct {
	mcpServer *server.MCPServer
	ops       PipelineOps
}

func NewServer(ops PipelineOps, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Intake Pipeline",
			version,
			server.WithToolCapabilities(true),
		),
		ops: ops,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"pipeline_status",
			mcp.WithDescription("Get the current normalization pipeline status of a job"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Case id or temp-{formId} placeholder")),
		),
		s.handleStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"retry_pipeline",
			mcp.WithDescription("Re-run the normalization pipeline with the job's original input"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Case id or temp-{formId} placeholder")),
		),
		s.handleRetry,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"regenerate_documents",
			mcp.WithDescription("Re-run the pipeline for a job with a new document selection"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Case id or temp-{formId} placeholder")),
			mcp.WithString("document_types", mcp.Required(), mcp.Description("Comma-separated document types, e.g. summons,complaint")),
		),
		s.handleRegenerate,
	)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	view, err := s.ops.Query(ctx, id)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get status: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(view)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRetry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	res, err := s.ops.Retry(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to retry: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRegenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	raw, ok := args["document_types"].(string)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: document_types"), nil
	}

	res, err := s.ops.Regenerate(ctx, id, splitList(raw), TriggerMCP)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to regenerate: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
