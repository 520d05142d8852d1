package domain

// OrderItem ties a product to an order. Subtotal is a stored generated
// column (quantity * unit_price) and is never written by the application.
type OrderItem struct {
	ID        int64   `json:"order_item_id"`
	OrderID   int64   `json:"order_id"`
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}
