// Package mcp exposes routing and run inspection as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/dispatch"
	"github.com/aretw0/switchyard/pkg/domain"
)

// RoutesURI is the resource listing every registered route.
const RoutesURI = "switchyard://routes"

// Runs is the read side of the durable substrate.
type Runs interface {
	Query(ctx context.Context, runID string) (*domain.RunState, error)
	List(ctx context.Context) ([]domain.RunState, error)
}

// RoutesResponse is the output of list_routes.
type RoutesResponse struct {
	Routes []domain.Route `json:"routes" jsonschema_description:"Registered routes in registration order"`
}

// RunsResponse is the output of list_runs.
type RunsResponse struct {
	Runs []RunInfo `json:"runs" jsonschema_description:"Stored runs, oldest first"`
}

// RunInfo is the compact view of a run returned by list_runs.
type RunInfo struct {
	RunID       string                `json:"run_id"`
	Pipeline    string                `json:"pipeline"`
	Status      domain.PipelineStatus `json:"status"`
	CurrentStep string                `json:"current_step"`
	LastError   string                `json:"last_error,omitempty"`
}

// Server exposes a dispatcher and a run store as an MCP server.
type Server struct {
	dispatcher *dispatch.Dispatcher
	runs       Runs
	logger     *slog.Logger
	version    string
	mcpServer  *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the advertised server version.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(d *dispatch.Dispatcher, runs Runs, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		runs:       runs,
		logger:     logging.NewNop(),
		version:    "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("switchyard-mcp", s.version)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_routes",
		mcp.WithDescription("List registered routes, optionally only those checked for a response type."),
		mcp.WithString("response_type", mcp.Description("Response type name, fully qualified or simple (optional)")),
		mcp.WithOutputSchema[RoutesResponse](),
	), mcp.NewStructuredToolHandler(s.handleListRoutes))

	s.mcpServer.AddTool(mcp.NewTool("evaluate_routes",
		mcp.WithDescription("Evaluate every route against a pipeline response and return the dispatches it would produce. Nothing is started."),
		mcp.WithString("response_type", mcp.Required(), mcp.Description("Declared type of the response")),
		mcp.WithString("response", mcp.Required(), mcp.Description("The response as a JSON object")),
		mcp.WithOutputSchema[domain.DispatchResult](),
	), mcp.NewStructuredToolHandler(s.handleEvaluateRoutes))

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the state of a durable pipeline run, including its journal and dispatches."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
	), s.handleGetRun)

	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List stored runs, optionally filtered by pipeline."),
		mcp.WithString("pipeline", mcp.Description("Pipeline name (optional)")),
		mcp.WithOutputSchema[RunsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListRuns))
}

func (s *Server) handleListRoutes(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RoutesResponse, error) {
	reg := s.dispatcher.Registry()
	if rt, _ := args["response_type"].(string); rt != "" {
		return RoutesResponse{Routes: reg.ListForResponseType(rt)}, nil
	}
	return RoutesResponse{Routes: reg.Routes()}, nil
}

func (s *Server) handleEvaluateRoutes(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.DispatchResult, error) {
	typeName, _ := args["response_type"].(string)
	if typeName == "" {
		return domain.DispatchResult{}, errors.New("response_type is required")
	}

	var response any
	switch raw := args["response"].(type) {
	case string:
		if err := json.Unmarshal([]byte(raw), &response); err != nil {
			return domain.DispatchResult{}, fmt.Errorf("response is not valid JSON: %w", err)
		}
	case map[string]interface{}:
		response = raw
	default:
		return domain.DispatchResult{}, errors.New("response must be a JSON object")
	}

	result := s.dispatcher.Dispatch(ctx, response, typeName)
	s.logger.Debug("MCP evaluate_routes", "response_type", typeName, "dispatches", len(result.Dispatches), "errors", len(result.Errors))
	return result, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	state, err := s.runs.Query(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get run failed: %v", err)), nil
	}
	jsonBytes, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunsResponse, error) {
	states, err := s.runs.List(ctx)
	if err != nil {
		return RunsResponse{}, fmt.Errorf("list runs failed: %w", err)
	}
	pipeline, _ := args["pipeline"].(string)

	out := RunsResponse{Runs: make([]RunInfo, 0, len(states))}
	for _, st := range states {
		if pipeline != "" && st.Pipeline != pipeline {
			continue
		}
		out.Runs = append(out.Runs, RunInfo{
			RunID:       st.RunID,
			Pipeline:    st.Pipeline,
			Status:      st.Status,
			CurrentStep: st.CurrentStep,
			LastError:   st.LastError,
		})
	}
	return out, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(RoutesURI, "Registered routes",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.dispatcher.Registry().Routes())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      RoutesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
