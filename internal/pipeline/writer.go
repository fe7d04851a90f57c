package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrilog/internal/models"
)

// EntryStore is the slice of the storage layer the writer needs.
type EntryStore interface {
	InsertEntry(ctx context.Context, entry *models.Entry) error
}

// Writer persists one consumption record and shapes the response entry.
// The clock is injected so tests can fix the consumed date.
type Writer struct {
	store EntryStore
	clock func() time.Time
}

func NewWriter(store EntryStore, clock func() time.Time) *Writer {
	if clock == nil {
		clock = time.Now
	}
	return &Writer{store: store, clock: clock}
}

// Write validates the quantity, persists the entry dated to the current day,
// and returns the result with nutrition scaled from the product's profile.
func (w *Writer) Write(ctx context.Context, product *models.Product, quantity float64, userID string) (*models.EntryResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", quantity)
	}

	entry := &models.Entry{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProductID:    product.ID,
		Quantity:     quantity,
		ConsumedDate: w.clock().Format("2006-01-02"),
	}

	if err := w.store.InsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("write entry for %q: %w", product.Name, err)
	}

	return &models.EntryResult{
		EntryID:      entry.ID,
		ProductID:    product.ID,
		Name:         product.Name,
		Quantity:     quantity,
		Nutrition:    product.Profile.Scale(quantity),
		ConsumedDate: entry.ConsumedDate,
	}, nil
}
