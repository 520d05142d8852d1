package products

import (
	"context"
	"database/sql"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, sku, description, price, category_id, image_url, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING product_id, stock_quantity, created_at, updated_at
	`, product.Name, product.SKU, product.Description, product.Price,
		product.CategoryID, product.ImageURL, product.IsAvailable,
	).Scan(&product.ID, &product.StockQuantity, &product.CreatedAt, &product.UpdatedAt)

	return database.ClassifyError(err)
}

// List returns newest-first. price is stored as DECIMAL(10,2); the FLOAT8
// cast surfaces it to callers as a plain number.
func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, description, sku, price::FLOAT8, stock_quantity,
		       category_id, image_url, is_available, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.SKU, &p.Price, &p.StockQuantity,
			&p.CategoryID, &p.ImageURL, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, database.ClassifyError(err)
	}

	return products, nil
}
