package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	mcpserver "github.com/ThinkInAIXYZ/go-mcp/server"

	"nutrilog/internal/config"
	"nutrilog/internal/llm"
	"nutrilog/internal/parser"
	"nutrilog/internal/pipeline"
	"nutrilog/internal/resolver"
	"nutrilog/internal/storage"
)

// Server exposes the meal pipeline as MCP tool calls over HTTP.
type Server struct {
	server     *mcpserver.Server
	httpServer *http.Server
	storage    *storage.Store
	pipeline   *pipeline.Pipeline
	logger     *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client, err := llm.New(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	pipe := pipeline.New(
		parser.New(client, logger),
		resolver.New(store, client, logger),
		pipeline.NewWriter(store, nil),
		logger,
	)

	srv := &Server{
		storage:  store,
		pipeline: pipe,
		logger:   logger.With("component", "server"),
	}

	mcpServer, err := mcpserver.NewServer(
		nil, // transport handled by the HTTP mux below
		mcpserver.WithServerInfo(protocol.Implementation{
			Name:    "nutrilog",
			Version: "1.0.0",
		}),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	srv.server = mcpServer

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleHTTP)

	srv.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}

	return srv, nil
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	var result *protocol.CallToolResult
	var err error

	switch request.Name {
	case "log_meal":
		result, err = s.handleLogMeal(r.Context(), &request)
	case "get_entries":
		result, err = s.handleGetEntries(r.Context(), &request)
	case "daily_summary":
		result, err = s.handleDailySummary(r.Context(), &request)
	default:
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	if s.storage != nil {
		s.storage.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(context.Background())
	}
	return nil
}

func (s *Server) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
