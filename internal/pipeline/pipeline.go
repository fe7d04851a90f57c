// Package pipeline runs one meal command end to end: parse the text,
// resolve each food to a product, write one entry per item, and aggregate
// per-item outcomes. One bad item never sinks the whole meal log.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nutrilog/internal/models"
)

const maxTextLength = 1000

// TextParser extracts structured items from a meal description.
type TextParser interface {
	Parse(ctx context.Context, text string) ([]models.ParsedItem, error)
}

// ProductResolver maps normalized names to products.
type ProductResolver interface {
	ResolveBatch(ctx context.Context, names []string) (map[string]*models.Product, error)
	ResolveOrCreate(ctx context.Context, normalized, original string) (*models.Product, error)
}

type Pipeline struct {
	parser   TextParser
	resolver ProductResolver
	writer   *Writer
	timeout  time.Duration
	logger   *slog.Logger
}

func New(parser TextParser, resolver ProductResolver, writer *Writer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		parser:   parser,
		resolver: resolver,
		writer:   writer,
		timeout:  2 * time.Minute,
		logger:   logger.With("component", "pipeline"),
	}
}

// Process runs the full pipeline for one user command. It always returns a
// well-formed result: whole-request failures come back as a single error
// covering the original text, per-item failures as one error per item.
func (p *Pipeline) Process(ctx context.Context, userID, text string) *models.ProcessResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result := &models.ProcessResult{
		Successes: []models.EntryResult{},
		Errors:    []models.ItemError{},
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		result.Errors = append(result.Errors, models.ItemError{
			SourceText: text,
			Message:    "meal description is empty",
		})
		return result
	}
	if len(trimmed) > maxTextLength {
		result.Errors = append(result.Errors, models.ItemError{
			SourceText: text,
			Message:    fmt.Sprintf("meal description exceeds %d characters", maxTextLength),
		})
		return result
	}

	items, err := p.parser.Parse(ctx, trimmed)
	if err != nil {
		p.logger.Error("parse stage failed", "error", err)
		result.Errors = append(result.Errors, models.ItemError{
			SourceText: trimmed,
			Message:    fmt.Sprintf("could not parse meal description: %v", err),
		})
		return result
	}
	if len(items) == 0 {
		result.Errors = append(result.Errors, models.ItemError{
			SourceText: trimmed,
			Message:    "no food items recognized",
		})
		return result
	}

	products := p.resolveStage(ctx, items)

	for _, item := range items {
		entry, err := p.writeItem(ctx, item, products[item.Name], userID)
		if err != nil {
			result.Errors = append(result.Errors, models.ItemError{
				SourceText: itemSourceText(item),
				Message:    err.Error(),
			})
			continue
		}
		result.Successes = append(result.Successes, *entry)
	}

	p.logger.Info("meal processed",
		"user", userID,
		"items", len(items),
		"succeeded", len(result.Successes),
		"failed", len(result.Errors))

	return result
}

// resolveStage batch-resolves all names, then falls back to one-by-one
// creation for the misses. A failed fallback leaves its name absent from the
// returned map; the write stage reports it per item.
func (p *Pipeline) resolveStage(ctx context.Context, items []models.ParsedItem) map[string]*models.Product {
	names := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.Name] {
			seen[item.Name] = true
			names = append(names, item.Name)
		}
	}

	products, err := p.resolver.ResolveBatch(ctx, names)
	if err != nil {
		p.logger.Error("batch resolution failed, falling back per name", "error", err)
		products = make(map[string]*models.Product, len(names))
	}

	for _, name := range names {
		if _, ok := products[name]; ok {
			continue
		}
		product, err := p.resolver.ResolveOrCreate(ctx, name, name)
		if err != nil {
			p.logger.Warn("fallback resolution failed", "name", name, "error", err)
			continue
		}
		products[name] = product
	}

	return products
}

// writeItem handles one item's write stage. Unexpected panics are converted
// to a per-item error so the orchestrator itself never throws.
func (p *Pipeline) writeItem(ctx context.Context, item models.ParsedItem, product *models.Product, userID string) (entry *models.EntryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("write stage panicked", "item", item.Name, "panic", r)
			entry, err = nil, fmt.Errorf("internal error while logging item")
		}
	}()

	if item.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", item.Quantity)
	}
	if product == nil {
		return nil, fmt.Errorf("could not resolve %q to a nutrition profile", item.Name)
	}

	return p.writer.Write(ctx, product, item.Quantity, userID)
}

func itemSourceText(item models.ParsedItem) string {
	return fmt.Sprintf("%s %v", item.Name, item.Quantity)
}
