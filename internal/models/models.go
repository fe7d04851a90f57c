package models

import (
	"fmt"
	"strings"
)

// Basis is the unit a product's nutrition values are expressed per.
type Basis string

const (
	Per100Mass   Basis = "per_100_mass"
	Per100Volume Basis = "per_100_volume"
	PerUnit      Basis = "per_unit"
)

func (b Basis) Valid() bool {
	switch b {
	case Per100Mass, Per100Volume, PerUnit:
		return true
	}
	return false
}

// NutritionProfile holds per-basis nutrition values for a product.
type NutritionProfile struct {
	Basis    Basis   `json:"basis"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

// Validate checks that the basis is known and no value is negative.
func (p *NutritionProfile) Validate() error {
	if !p.Basis.Valid() {
		return fmt.Errorf("unknown basis %q", p.Basis)
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"calories", p.Calories},
		{"protein", p.Protein},
		{"fat", p.Fat},
		{"carbs", p.Carbs},
	} {
		if v.value < 0 {
			return fmt.Errorf("negative %s value %v", v.name, v.value)
		}
	}
	return nil
}

// Scale converts the per-basis profile into absolute values for a quantity.
// Mass and volume bases are per 100 units; PerUnit counts discrete units.
func (p *NutritionProfile) Scale(quantity float64) Nutrition {
	factor := quantity
	if p.Basis == Per100Mass || p.Basis == Per100Volume {
		factor = quantity / 100
	}
	return Nutrition{
		Calories: p.Calories * factor,
		Protein:  p.Protein * factor,
		Fat:      p.Fat * factor,
		Carbs:    p.Carbs * factor,
	}
}

// Nutrition is an absolute, quantity-scaled set of values.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
	Carbs    float64 `json:"carbs"`
}

// Product is a cached nutrition profile keyed by normalized name.
type Product struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Profile NutritionProfile `json:"profile"`
}

// ParsedItem is one food mention extracted from the meal text. Ephemeral,
// never persisted.
type ParsedItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// Entry is one persisted consumption record.
type Entry struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	ProductID    string  `json:"product_id"`
	Quantity     float64 `json:"quantity"`
	ConsumedDate string  `json:"consumed_date"`
}

// EntryResult is the response shape for one logged item. Nutrition is a
// snapshot computed at write time, not a live join against the product.
type EntryResult struct {
	EntryID      string    `json:"entry_id"`
	ProductID    string    `json:"product_id"`
	Name         string    `json:"name"`
	Quantity     float64   `json:"quantity"`
	Nutrition    Nutrition `json:"nutrition"`
	ConsumedDate string    `json:"consumed_date"`
}

// ItemError reports one item that failed at any stage.
type ItemError struct {
	SourceText string `json:"source_text"`
	Message    string `json:"message"`
}

// ProcessResult aggregates one meal-command run. Every parsed item lands in
// exactly one of the two slices.
type ProcessResult struct {
	Successes []EntryResult `json:"successes"`
	Errors    []ItemError   `json:"errors"`
}

// NormalizeName lowercases, trims, and collapses inner whitespace so the
// result can serve as the product cache key.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
