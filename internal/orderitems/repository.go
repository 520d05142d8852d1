package orderitems

import (
	"context"
	"database/sql"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
)

type OrderItemRepository struct {
	db *sql.DB
}

func NewOrderItemRepository(db *sql.DB) *OrderItemRepository {
	return &OrderItemRepository{db: db}
}

// Create never writes subtotal: it is a stored generated column, so the
// RETURNING clause reads back the value the store computed.
func (r *OrderItemRepository) Create(ctx context.Context, item *domain.OrderItem) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING order_item_id, subtotal::FLOAT8
	`, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice,
	).Scan(&item.ID, &item.Subtotal)

	return database.ClassifyError(err)
}

func (r *OrderItemRepository) List(ctx context.Context) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_item_id, order_id, product_id, quantity, unit_price::FLOAT8, subtotal::FLOAT8
		FROM order_items
		ORDER BY order_id DESC
	`)
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	defer func() { _ = rows.Close() }()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID,
			&item.Quantity, &item.UnitPrice, &item.Subtotal,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, database.ClassifyError(err)
	}

	return items, nil
}
