// Package parser turns one free-text meal description into structured items.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"nutrilog/internal/llm"
	"nutrilog/internal/models"
)

const systemPrompt = `You are a nutrition logging assistant. Extract every food item the user mentions, with the amount consumed.

Quantity rules:
- For foods measured by weight, quantity is in grams.
- For foods measured by volume, quantity is in milliliters.
- For countable foods ("2 eggs", "an apple"), quantity is the number of units.
- If no amount is given, estimate a typical single portion.

Respond with JSON only, no prose.`

var itemsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"quantity": {"type": "number"}
				},
				"required": ["name", "quantity"]
			}
		}
	},
	"required": ["items"]
}`)

// Completer is the slice of the completion client the parser needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request, out any) (*llm.Usage, error)
}

type Parser struct {
	client Completer
	logger *slog.Logger
}

func New(client Completer, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		client: client,
		logger: logger.With("component", "parser"),
	}
}

// Parse extracts food items from text. Names come back normalized. An empty
// result is not an error; the caller decides what "nothing recognized" means.
func (p *Parser) Parse(ctx context.Context, text string) ([]models.ParsedItem, error) {
	var out struct {
		Items []models.ParsedItem `json:"items"`
	}

	_, err := p.client.Complete(ctx, llm.Request{
		Prompt:       fmt.Sprintf("Extract the food items from this meal description: %q", text),
		SystemPrompt: systemPrompt,
		Schema:       itemsSchema,
		MaxTokens:    1000,
		Temperature:  0.1,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("parse meal text: %w", err)
	}

	items := make([]models.ParsedItem, 0, len(out.Items))
	for _, item := range out.Items {
		name := models.NormalizeName(item.Name)
		if name == "" {
			continue
		}
		items = append(items, models.ParsedItem{Name: name, Quantity: item.Quantity})
	}

	p.logger.Debug("parsed meal text", "items", len(items))
	return items, nil
}
