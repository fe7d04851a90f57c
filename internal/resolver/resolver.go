// Package resolver maps normalized food names to nutrition products,
// enriching unknown names through the completion client and writing the
// result back to the product table.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"nutrilog/internal/llm"
	"nutrilog/internal/models"
	"nutrilog/internal/storage"
)

const systemPrompt = `You are a nutrition database. Given one food name, return its typical nutrition values.

Choose the basis:
- "per_100_mass" for foods weighed in grams (values per 100 g)
- "per_100_volume" for liquids (values per 100 ml)
- "per_unit" for countable foods like eggs or apples (values per single item)

All values must be non-negative numbers. Respond with JSON only.`

var profileSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"basis": {"type": "string", "enum": ["per_100_mass", "per_100_volume", "per_unit"]},
		"calories": {"type": "number", "minimum": 0},
		"protein": {"type": "number", "minimum": 0},
		"fat": {"type": "number", "minimum": 0},
		"carbs": {"type": "number", "minimum": 0}
	},
	"required": ["basis", "calories", "protein", "fat", "carbs"]
}`)

// Completer is the slice of the completion client the resolver needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request, out any) (*llm.Usage, error)
}

// ProductStore is the slice of the storage layer the resolver needs.
type ProductStore interface {
	ProductsByNames(ctx context.Context, names []string) (map[string]*models.Product, error)
	ProductByName(ctx context.Context, name string) (*models.Product, error)
	InsertProduct(ctx context.Context, name string, profile models.NutritionProfile) (*models.Product, error)
}

type Resolver struct {
	store  ProductStore
	client Completer
	memory *gocache.Cache
	logger *slog.Logger
}

func New(store ProductStore, client Completer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		client: client,
		memory: gocache.New(5*time.Minute, 10*time.Minute),
		logger: logger.With("component", "resolver"),
	}
}

// ResolveBatch returns the subset of names that already have products,
// checking the in-process cache first and the database in one query. It
// never creates products.
func (r *Resolver) ResolveBatch(ctx context.Context, names []string) (map[string]*models.Product, error) {
	resolved := make(map[string]*models.Product, len(names))

	var misses []string
	for _, name := range names {
		if cached, ok := r.memory.Get(name); ok {
			resolved[name] = cached.(*models.Product)
			continue
		}
		misses = append(misses, name)
	}

	if len(misses) == 0 {
		return resolved, nil
	}

	fromDB, err := r.store.ProductsByNames(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("batch product lookup: %w", err)
	}
	for name, product := range fromDB {
		r.memory.SetDefault(name, product)
		resolved[name] = product
	}

	return resolved, nil
}

// ResolveOrCreate synthesizes a nutrition profile for an unseen name and
// inserts it. A concurrent creator winning the insert race is benign: the
// existing row is re-read and returned.
func (r *Resolver) ResolveOrCreate(ctx context.Context, normalized, original string) (*models.Product, error) {
	var profile models.NutritionProfile
	_, err := r.client.Complete(ctx, llm.Request{
		Prompt:       fmt.Sprintf("Provide the nutrition profile for: %q", original),
		SystemPrompt: systemPrompt,
		Schema:       profileSchema,
		MaxTokens:    500,
		Temperature:  0.1,
	}, &profile)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", normalized, err)
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("resolve %q: invalid nutrition profile: %w", normalized, err)
	}

	product, err := r.store.InsertProduct(ctx, normalized, profile)
	if errors.Is(err, storage.ErrDuplicateProduct) {
		r.logger.Debug("lost product creation race, re-reading", "name", normalized)
		product, err = r.store.ProductByName(ctx, normalized)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", normalized, err)
	}

	r.memory.SetDefault(normalized, product)
	r.logger.Info("product resolved", "name", normalized, "basis", product.Profile.Basis)
	return product, nil
}
