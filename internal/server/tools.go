package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
)

type LogMealParams struct {
	Text   string `json:"text" description:"Free-text description of the meal eaten"`
	UserID string `json:"user_id" description:"Identifier of the user logging the meal"`
}

type GetEntriesParams struct {
	UserID string `json:"user_id" description:"Identifier of the user"`
	Date   string `json:"date,omitempty" description:"Day to query (YYYY-MM-DD, defaults to today)"`
	Limit  int    `json:"limit,omitempty" description:"Maximum number of entries to return"`
}

type DailySummaryParams struct {
	UserID string `json:"user_id" description:"Identifier of the user"`
	Date   string `json:"date,omitempty" description:"Day to summarize (YYYY-MM-DD, defaults to today)"`
}

// extractParams round-trips the request arguments through JSON into target.
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return nil
}

// handleLogMeal runs the full meal pipeline. The pipeline owns all item-level
// failure handling, so this handler only rejects structurally bad requests.
func (s *Server) handleLogMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LogMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if params.Text == "" {
		return nil, fmt.Errorf("meal text is required")
	}
	if params.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	result := s.pipeline.Process(ctx, params.UserID, params.Text)
	return s.createJSONResponse(result)
}

func (s *Server) handleGetEntries(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetEntriesParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if params.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	date, err := normalizeDate(params.Date)
	if err != nil {
		return nil, err
	}

	entries, err := s.storage.EntriesByUserAndDate(ctx, params.UserID, date, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve entries: %w", err)
	}

	return s.createJSONResponse(entries)
}

func (s *Server) handleDailySummary(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DailySummaryParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if params.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	date, err := normalizeDate(params.Date)
	if err != nil {
		return nil, err
	}

	total, err := s.storage.DailySummary(ctx, params.UserID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize day: %w", err)
	}

	return s.createJSONResponse(map[string]interface{}{
		"date":  date,
		"total": total,
	})
}

func normalizeDate(date string) (string, error) {
	if date == "" {
		return time.Now().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid date format, want YYYY-MM-DD: %w", err)
	}
	return date, nil
}
