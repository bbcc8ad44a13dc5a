// Package mcpserver exposes the memory core as Model Context Protocol tools.
// With a configured port it serves HTTP with an SSE transport; otherwise it
// speaks the stdio transport, which is how agent hosts usually launch it.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/config"
	"github.com/causalmem/causalmem/internal/version"
)

// instructions tells connected agents how to use the memory well: read
// before acting, write after acting.
const instructions = "causalmem is a causal event memory. " +
	"Call the query tool before acting to recover the narrative of related past events, " +
	"and call add_event after each significant action or observation so future queries " +
	"can explain what happened and why."

// Memory is the slice of the engine the tool layer needs.
type Memory interface {
	AddEvent(ctx context.Context, effectText string) (int64, error)
	Query(ctx context.Context, queryText string) (string, error)
}

// Server wires the two memory tools onto an MCP server.
type Server struct {
	memory Memory
	cfg    *config.Config
	log    *zap.Logger
	mcp    *mcp.Server
}

type addEventArgs struct {
	Effect string `json:"effect" jsonschema:"Description of the event that occurred (the effect). A clear, concise statement from the agent's perspective; the system analyzes it against recent events to detect causal relationships."`
}

type queryArgs struct {
	Query string `json:"query" jsonschema:"The query to search for in memory. Can be a question, topic, or description of an event; the response is the causal narrative around the most relevant event."`
}

// New builds the server and registers the tools.
func New(memory Memory, cfg *config.Config, log *zap.Logger) *Server {
	s := &Server{memory: memory, cfg: cfg, log: log}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "causalmem", Version: version.Version},
		&mcp.ServerOptions{Instructions: instructions},
	)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "add_event",
		Description: "Add a new event to the causal memory system. The system automatically " +
			"determines causal relationships with previous events using semantic similarity " +
			"and LLM reasoning, creating links that enable narrative chain reconstruction.",
	}, s.handleAddEvent)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query",
		Description: "Query the causal memory and retrieve the narrative around the most relevant event.",
	}, s.handleQuery)

	return s
}

// Run serves until ctx is canceled: stdio when no port is configured, HTTP
// with SSE otherwise.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Port == 0 {
		s.log.Info("mcp server on stdio")
		return s.mcp.Run(ctx, &mcp.StdioTransport{})
	}
	return s.runHTTP(ctx)
}

func (s *Server) runHTTP(ctx context.Context) error {
	sse := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcp })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleBanner)
	mux.Handle("/sse", sse)
	mux.Handle("/messages", sse)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("mcp server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("mcp http server: %w", err)
	}
}

// handleBanner is the liveness endpoint for HTTP deployments.
func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":    "causalmem",
		"version": version.Version,
		"tools":   []string{"add_event", "query"},
		"endpoints": map[string]string{
			"sse":      "/sse",
			"messages": "/messages",
		},
	})
}

func (s *Server) handleAddEvent(ctx context.Context, _ *mcp.CallToolRequest, args addEventArgs) (*mcp.CallToolResult, any, error) {
	if args.Effect == "" {
		return errorResult("Error: 'effect' parameter is required"), nil, nil
	}

	id, err := s.memory.AddEvent(ctx, args.Effect)
	if err != nil {
		s.log.Error("add_event tool failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Error executing add_event: %v", err)), nil, nil
	}

	s.log.Info("event added via tool", zap.Int64("event_id", id))
	return textResult(fmt.Sprintf("Successfully added event to memory: %s", args.Effect)), nil, nil
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, args queryArgs) (*mcp.CallToolResult, any, error) {
	if args.Query == "" {
		return errorResult("Error: 'query' parameter is required"), nil, nil
	}

	narrative, err := s.memory.Query(ctx, args.Query)
	if err != nil {
		s.log.Error("query tool failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Error executing query: %v", err)), nil, nil
	}
	return textResult(narrative), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult reports a tool-level failure without failing the protocol
// call; agents see the message and can retry or rephrase.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
