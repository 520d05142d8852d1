package orders

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order in a single statement; the store assigns
// order_id and order_date atomically with the constraint checks. A missing
// order number is generated here since the column is NOT NULL UNIQUE.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.OrderNumber == "" {
		order.OrderNumber = "ORD-" + uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, order_number, total_amount, status, shipping_address,
		                    billing_address, payment_method, payment_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING order_id, order_date
	`, order.UserID, order.OrderNumber, order.TotalAmount, order.Status,
		order.ShippingAddress, order.BillingAddress, order.PaymentMethod,
		order.PaymentStatus, order.Notes,
	).Scan(&order.ID, &order.OrderDate)

	return database.ClassifyError(err)
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, user_id, order_number, order_date, total_amount::FLOAT8,
		       status, shipping_address, billing_address, payment_method, payment_status, notes
		FROM orders
		ORDER BY order_date DESC
	`)
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.UserID, &order.OrderNumber, &order.OrderDate, &order.TotalAmount,
			&order.Status, &order.ShippingAddress, &order.BillingAddress,
			&order.PaymentMethod, &order.PaymentStatus, &order.Notes,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, database.ClassifyError(err)
	}

	return orders, nil
}
