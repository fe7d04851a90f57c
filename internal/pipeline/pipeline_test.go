package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilog/internal/models"
)

type fakeParser struct {
	items []models.ParsedItem
	err   error
}

func (f *fakeParser) Parse(context.Context, string) ([]models.ParsedItem, error) {
	return f.items, f.err
}

// fakeResolver resolves from a fixed map and fails creation for names listed
// in failing.
type fakeResolver struct {
	known   map[string]*models.Product
	failing map[string]bool
	created []string
}

func (f *fakeResolver) ResolveBatch(_ context.Context, names []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product)
	for _, name := range names {
		if p, ok := f.known[name]; ok {
			out[name] = p
		}
	}
	return out, nil
}

func (f *fakeResolver) ResolveOrCreate(_ context.Context, normalized, _ string) (*models.Product, error) {
	if f.failing[normalized] {
		return nil, errors.New("no nutrition data available")
	}
	product := &models.Product{
		ID:      "created-" + normalized,
		Name:    normalized,
		Profile: models.NutritionProfile{Basis: models.Per100Mass, Calories: 100},
	}
	f.created = append(f.created, normalized)
	return product, nil
}

type memEntryStore struct {
	entries   []*models.Entry
	failAfter int // fail inserts once len(entries) reaches this, -1 disables
}

func (m *memEntryStore) InsertEntry(_ context.Context, entry *models.Entry) error {
	if m.failAfter >= 0 && len(m.entries) >= m.failAfter {
		return errors.New("disk full")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
}

func product(name string, basis models.Basis, calories float64) *models.Product {
	return &models.Product{
		ID:   "prod-" + name,
		Name: name,
		Profile: models.NutritionProfile{
			Basis:    basis,
			Calories: calories,
			Protein:  calories / 10,
		},
	}
}

func newTestPipeline(p *fakeParser, r *fakeResolver, store *memEntryStore) *Pipeline {
	return New(p, r, NewWriter(store, fixedClock), nil)
}

func TestPartialSuccess(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{
		{Name: "chicken", Quantity: 200},
		{Name: "unknownproduct", Quantity: 50},
	}}
	resolver := &fakeResolver{
		known:   map[string]*models.Product{"chicken": product("chicken", models.Per100Mass, 165)},
		failing: map[string]bool{"unknownproduct": true},
	}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "chicken 200g and unknownproduct 50g")

	require.Len(t, result.Successes, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "chicken", result.Successes[0].Name)
	assert.Contains(t, result.Errors[0].SourceText, "unknownproduct")
	assert.Len(t, store.entries, 1)
}

func TestCacheHitArithmetic(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{{Name: "chicken", Quantity: 200}}}
	resolver := &fakeResolver{known: map[string]*models.Product{
		"chicken": product("chicken", models.Per100Mass, 165),
	}}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "chicken 200g")

	require.Len(t, result.Successes, 1)
	assert.InDelta(t, 330, result.Successes[0].Nutrition.Calories, 0.001)
	assert.Equal(t, "2026-08-31", result.Successes[0].ConsumedDate)
}

func TestUnitBasisScalesByCount(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{{Name: "egg", Quantity: 3}}}
	resolver := &fakeResolver{known: map[string]*models.Product{
		"egg": product("egg", models.PerUnit, 78),
	}}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "three eggs")

	require.Len(t, result.Successes, 1)
	assert.InDelta(t, 234, result.Successes[0].Nutrition.Calories, 0.001)
}

func TestQuantityValidation(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{
		{Name: "chicken", Quantity: 0},
		{Name: "rice", Quantity: 100},
	}}
	resolver := &fakeResolver{known: map[string]*models.Product{
		"chicken": product("chicken", models.Per100Mass, 165),
		"rice":    product("rice", models.Per100Mass, 130),
	}}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "chicken and rice 100g")

	require.Len(t, result.Successes, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "rice", result.Successes[0].Name)
	assert.Contains(t, result.Errors[0].Message, "quantity")
	assert.Len(t, store.entries, 1, "no row written for the invalid item")
}

func TestEmptyParseYieldsOneRequestError(t *testing.T) {
	parser := &fakeParser{items: nil}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, &fakeResolver{}, store).Process(context.Background(), "u1", "good morning")

	assert.Empty(t, result.Successes)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "good morning", result.Errors[0].SourceText)
	assert.Empty(t, store.entries)
}

func TestParserFailureAbortsRequest(t *testing.T) {
	parser := &fakeParser{err: errors.New("completion rate limited")}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, &fakeResolver{}, store).Process(context.Background(), "u1", "chicken 200g")

	assert.Empty(t, result.Successes)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "chicken 200g", result.Errors[0].SourceText)
	assert.Contains(t, result.Errors[0].Message, "could not parse")
}

func TestEmptyTextRejectedBeforeParsing(t *testing.T) {
	result := newTestPipeline(&fakeParser{}, &fakeResolver{}, &memEntryStore{failAfter: -1}).
		Process(context.Background(), "u1", "   ")

	assert.Empty(t, result.Successes)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "empty")
}

func TestOversizedTextRejected(t *testing.T) {
	result := newTestPipeline(&fakeParser{}, &fakeResolver{}, &memEntryStore{failAfter: -1}).
		Process(context.Background(), "u1", strings.Repeat("a", 1001))

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "1000")
}

func TestOrderingPreservedAcrossMidItemFailure(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{
		{Name: "chicken", Quantity: 100},
		{Name: "mystery", Quantity: 50},
		{Name: "rice", Quantity: 100},
	}}
	resolver := &fakeResolver{
		known: map[string]*models.Product{
			"chicken": product("chicken", models.Per100Mass, 165),
			"rice":    product("rice", models.Per100Mass, 130),
		},
		failing: map[string]bool{"mystery": true},
	}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "chicken, mystery, rice")

	require.Len(t, result.Successes, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "chicken", result.Successes[0].Name)
	assert.Equal(t, "rice", result.Successes[1].Name)
	assert.Contains(t, result.Errors[0].SourceText, "mystery")
}

func TestFallbackCreationForUnknownNames(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{
		{Name: "chicken", Quantity: 100},
		{Name: "quinoa", Quantity: 80},
	}}
	resolver := &fakeResolver{known: map[string]*models.Product{
		"chicken": product("chicken", models.Per100Mass, 165),
	}}
	store := &memEntryStore{failAfter: -1}

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "chicken 100g, quinoa 80g")

	require.Len(t, result.Successes, 2)
	assert.Equal(t, []string{"quinoa"}, resolver.created, "only the cache miss goes through creation")
}

func TestWriteFailureIsolatedPerItem(t *testing.T) {
	parser := &fakeParser{items: []models.ParsedItem{
		{Name: "chicken", Quantity: 100},
		{Name: "rice", Quantity: 100},
	}}
	resolver := &fakeResolver{known: map[string]*models.Product{
		"chicken": product("chicken", models.Per100Mass, 165),
		"rice":    product("rice", models.Per100Mass, 130),
	}}
	store := &memEntryStore{failAfter: 1} // first insert succeeds, second fails

	result := newTestPipeline(parser, resolver, store).Process(context.Background(), "u1", "chicken and rice")

	require.Len(t, result.Successes, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "chicken", result.Successes[0].Name)
	assert.Contains(t, result.Errors[0].SourceText, "rice")
}

func TestEveryParsedItemAccountedFor(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		items := make([]models.ParsedItem, n)
		known := make(map[string]*models.Product)
		failing := make(map[string]bool)
		for i := range items {
			name := fmt.Sprintf("food%d", i)
			items[i] = models.ParsedItem{Name: name, Quantity: float64(i * 50)} // item 0 has quantity 0
			if i%2 == 0 {
				known[name] = product(name, models.Per100Mass, 100)
			} else {
				failing[name] = true
			}
		}
		store := &memEntryStore{failAfter: -1}

		result := newTestPipeline(&fakeParser{items: items}, &fakeResolver{known: known, failing: failing}, store).
			Process(context.Background(), "u1", "many foods")

		assert.Equal(t, n, len(result.Successes)+len(result.Errors))
	}
}
