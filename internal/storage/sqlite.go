package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"

	"nutrilog/internal/models"
)

// sqlite extended result codes for constraint violations.
const (
	codeConstraintUnique     = 2067
	codeConstraintPrimaryKey = 1555
)

// ErrDuplicateProduct signals that an insert lost a race against another
// writer creating the same normalized name. Callers re-read instead of
// failing the item.
var ErrDuplicateProduct = errors.New("product already exists")

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS products (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        basis TEXT NOT NULL,
        calories REAL NOT NULL CHECK (calories >= 0),
        protein REAL NOT NULL CHECK (protein >= 0),
        fat REAL NOT NULL CHECK (fat >= 0),
        carbs REAL NOT NULL CHECK (carbs >= 0),
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS entries (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        product_id TEXT NOT NULL REFERENCES products(id),
        quantity REAL NOT NULL CHECK (quantity > 0),
        consumed_date TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_entries_user_date ON entries(user_id, consumed_date);
    CREATE INDEX IF NOT EXISTS idx_entries_product ON entries(product_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// ProductsByNames looks up all given normalized names in one query and
// returns the subset that exists.
func (s *Store) ProductsByNames(ctx context.Context, names []string) (map[string]*models.Product, error) {
	products := make(map[string]*models.Product, len(names))
	if len(names) == 0 {
		return products, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	query := fmt.Sprintf(`
        SELECT id, name, basis, calories, protein, fat, carbs
        FROM products
        WHERE name IN (%s)
    `, placeholders)

	args := make([]interface{}, len(names))
	for i, name := range names {
		args[i] = name
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[product.Name] = product
	}

	return products, rows.Err()
}

func (s *Store) ProductByName(ctx context.Context, name string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, basis, calories, protein, fat, carbs
        FROM products
        WHERE name = ?
    `, name)

	product := &models.Product{}
	var basis string
	err := row.Scan(&product.ID, &product.Name, &basis,
		&product.Profile.Calories, &product.Profile.Protein,
		&product.Profile.Fat, &product.Profile.Carbs)
	if err != nil {
		return nil, fmt.Errorf("failed to query product %q: %w", name, err)
	}
	product.Profile.Basis = models.Basis(basis)

	return product, nil
}

// InsertProduct creates one product row. A uniqueness violation on the
// normalized name comes back as ErrDuplicateProduct.
func (s *Store) InsertProduct(ctx context.Context, name string, profile models.NutritionProfile) (*models.Product, error) {
	product := &models.Product{
		ID:      uuid.New().String(),
		Name:    name,
		Profile: profile,
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO products (id, name, basis, calories, protein, fat, carbs, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, product.ID, product.Name, string(profile.Basis),
		profile.Calories, profile.Protein, profile.Fat, profile.Carbs,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateProduct
		}
		return nil, fmt.Errorf("failed to insert product %q: %w", name, err)
	}

	return product, nil
}

func (s *Store) InsertEntry(ctx context.Context, entry *models.Entry) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO entries (id, user_id, product_id, quantity, consumed_date, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, entry.ID, entry.UserID, entry.ProductID, entry.Quantity,
		entry.ConsumedDate, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	return nil
}

// EntriesByUserAndDate returns a user's entries for one day, newest first,
// with nutrition recomputed from the current product profile.
func (s *Store) EntriesByUserAndDate(ctx context.Context, userID, date string, limit int) ([]*models.EntryResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT e.id, e.product_id, p.name, e.quantity, e.consumed_date,
               p.basis, p.calories, p.protein, p.fat, p.carbs
        FROM entries e
        JOIN products p ON p.id = e.product_id
        WHERE e.user_id = ? AND e.consumed_date = ?
        ORDER BY e.created_at DESC
        LIMIT ?
    `, userID, date, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var results []*models.EntryResult
	for rows.Next() {
		var (
			result  models.EntryResult
			profile models.NutritionProfile
			basis   string
		)
		err := rows.Scan(&result.EntryID, &result.ProductID, &result.Name,
			&result.Quantity, &result.ConsumedDate,
			&basis, &profile.Calories, &profile.Protein, &profile.Fat, &profile.Carbs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		profile.Basis = models.Basis(basis)
		result.Nutrition = profile.Scale(result.Quantity)
		results = append(results, &result)
	}

	return results, rows.Err()
}

// DailySummary sums a user's scaled nutrition for one day.
func (s *Store) DailySummary(ctx context.Context, userID, date string) (*models.Nutrition, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT
            COALESCE(SUM(p.calories * CASE WHEN p.basis = 'per_unit' THEN e.quantity ELSE e.quantity / 100.0 END), 0),
            COALESCE(SUM(p.protein  * CASE WHEN p.basis = 'per_unit' THEN e.quantity ELSE e.quantity / 100.0 END), 0),
            COALESCE(SUM(p.fat      * CASE WHEN p.basis = 'per_unit' THEN e.quantity ELSE e.quantity / 100.0 END), 0),
            COALESCE(SUM(p.carbs    * CASE WHEN p.basis = 'per_unit' THEN e.quantity ELSE e.quantity / 100.0 END), 0)
        FROM entries e
        JOIN products p ON p.id = e.product_id
        WHERE e.user_id = ? AND e.consumed_date = ?
    `, userID, date)

	var total models.Nutrition
	if err := row.Scan(&total.Calories, &total.Protein, &total.Fat, &total.Carbs); err != nil {
		return nil, fmt.Errorf("failed to sum daily nutrition: %w", err)
	}

	return &total, nil
}

func scanProduct(rows *sql.Rows) (*models.Product, error) {
	product := &models.Product{}
	var basis string
	err := rows.Scan(&product.ID, &product.Name, &basis,
		&product.Profile.Calories, &product.Profile.Protein,
		&product.Profile.Fat, &product.Profile.Carbs)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	product.Profile.Basis = models.Basis(basis)
	return product, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == codeConstraintUnique || code == codeConstraintPrimaryKey
	}
	// Driver versions differ in how constraint errors are wrapped.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
