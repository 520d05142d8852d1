package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)

type Order struct {
	ID              int64         `json:"order_id"`
	UserID          int64         `json:"user_id"`
	OrderNumber     string        `json:"order_number"`
	OrderDate       time.Time     `json:"order_date"`
	TotalAmount     float64       `json:"total_amount"`
	Status          OrderStatus   `json:"status"`
	ShippingAddress string        `json:"shipping_address"`
	BillingAddress  string        `json:"billing_address"`
	PaymentMethod   string        `json:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Notes           string        `json:"notes"`
}
