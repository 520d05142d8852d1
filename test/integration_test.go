//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
	"github.com/shopkit/orders-api/internal/health"
	"github.com/shopkit/orders-api/internal/messaging"
	"github.com/shopkit/orders-api/internal/notifier"
	"github.com/shopkit/orders-api/internal/orderitems"
	"github.com/shopkit/orders-api/internal/orders"
	"github.com/shopkit/orders-api/internal/products"
	"github.com/shopkit/orders-api/internal/users"
)

func newMux(db *sql.DB, producer *messaging.Producer) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	healthHandler := health.NewHandler(db, logger)
	userHandler := users.NewHandler(users.NewUserRepository(db), logger)
	productHandler := products.NewHandler(products.NewProductRepository(db), logger)
	orderHandler := orders.NewHandler(orders.NewOrderRepository(db), producer, logger)
	orderItemHandler := orderitems.NewHandler(orderitems.NewOrderItemRepository(db), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", healthHandler.HandleCheck)
	mux.HandleFunc("GET /api/users", userHandler.HandleList)
	mux.HandleFunc("POST /api/users", userHandler.HandleCreate)
	mux.HandleFunc("GET /api/users/{id}", userHandler.HandleGet)
	mux.HandleFunc("PUT /api/users/{id}", userHandler.HandleUpdate)
	mux.HandleFunc("DELETE /api/users/{id}", userHandler.HandleDelete)
	mux.HandleFunc("GET /api/products", productHandler.HandleList)
	mux.HandleFunc("POST /api/products", productHandler.HandleCreate)
	mux.HandleFunc("GET /api/orders", orderHandler.HandleList)
	mux.HandleFunc("POST /api/orders", orderHandler.HandleCreate)
	mux.HandleFunc("GET /api/order-items", orderItemHandler.HandleList)
	mux.HandleFunc("POST /api/order-items", orderItemHandler.HandleCreate)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func rowCount(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("failed to count %s rows: %v", table, err)
	}
	return count
}

func createUser(t *testing.T, mux *http.ServeMux, username, email string) domain.User {
	t.Helper()

	body := fmt.Sprintf(`{"username": %q, "email": %q, "password": "s3cret", "first_name": "Jim", "last_name": "Beam", "phone": "555-0100", "address": "1 Main St"}`, username, email)
	rec := doJSON(t, mux, http.MethodPost, "/api/users", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 creating user, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.User](t, rec)
}

func createProduct(t *testing.T, mux *http.ServeMux, sku string, price float64) domain.Product {
	t.Helper()

	body := fmt.Sprintf(`{"name": "Iphone", "sku": %q, "description": "best phone", "price": %v, "category_id": 1, "image_url": "https://images/1.webp", "is_available": true}`, sku, price)
	rec := doJSON(t, mux, http.MethodPost, "/api/products", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 creating product, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Product](t, rec)
}

func createOrder(t *testing.T, mux *http.ServeMux, userID int64) domain.Order {
	t.Helper()

	body := fmt.Sprintf(`{"user_id": %d, "total_amount": 10000, "shipping_address": "1 Main St", "payment_method": "card"}`, userID)
	rec := doJSON(t, mux, http.MethodPost, "/api/orders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 creating order, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Order](t, rec)
}

func TestHealth(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := SetupPostgres(ctx, t)

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newMux(db, nil)

	rec := doJSON(t, mux, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]string](t, rec)
	if resp["database"] != "connected" {
		t.Errorf("expected connected database, got %q", resp["database"])
	}
}

func TestUserLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := SetupPostgres(ctx, t)

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newMux(db, nil)

	created := createUser(t, mux, "jim", "jim@example.com")
	if created.ID == 0 {
		t.Fatal("expected a server-assigned user id")
	}

	t.Run("password hash never appears in responses", func(t *testing.T) {
		for _, rec := range []*httptest.ResponseRecorder{
			doJSON(t, mux, http.MethodGet, "/api/users", ""),
			doJSON(t, mux, http.MethodGet, fmt.Sprintf("/api/users/%d", created.ID), ""),
		} {
			if strings.Contains(rec.Body.String(), "password") {
				t.Errorf("response leaks password material: %s", rec.Body.String())
			}
		}
	})

	t.Run("duplicate email is a conflict and adds no row", func(t *testing.T) {
		before := rowCount(t, db, "users")

		rec := doJSON(t, mux, http.MethodPost, "/api/users",
			`{"username": "jim2", "email": "jim@example.com", "password": "s3cret"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "conflict" {
			t.Errorf("expected conflict kind, got %q", kind)
		}
		if after := rowCount(t, db, "users"); after != before {
			t.Errorf("row count changed from %d to %d", before, after)
		}
	})

	t.Run("partial update changes only supplied fields", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPut, fmt.Sprintf("/api/users/%d", created.ID),
			`{"email": "beam@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		updated := decode[domain.User](t, rec)
		if updated.Email != "beam@example.com" {
			t.Errorf("expected updated email, got %q", updated.Email)
		}
		if updated.FirstName != "Jim" {
			t.Errorf("first_name must be unchanged, got %q", updated.FirstName)
		}
	})

	t.Run("empty update returns the current row unchanged", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPut, fmt.Sprintf("/api/users/%d", created.ID), `{}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		current := decode[domain.User](t, rec)
		if current.Email != "beam@example.com" || current.FirstName != "Jim" {
			t.Errorf("unexpected row after empty update: %+v", current)
		}
	})

	t.Run("update of a missing user is not found", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPut, "/api/users/424242", `{"email": "x@example.com"}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("delete cascades to orders", func(t *testing.T) {
		victim := createUser(t, mux, "gone", "gone@example.com")
		createOrder(t, mux, victim.ID)

		rec := doJSON(t, mux, http.MethodDelete, fmt.Sprintf("/api/users/%d", victim.ID), "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM orders WHERE user_id = $1", victim.ID).Scan(&count); err != nil {
			t.Fatalf("failed to count orders: %v", err)
		}
		if count != 0 {
			t.Errorf("expected cascade delete of orders, %d remain", count)
		}

		rec = doJSON(t, mux, http.MethodDelete, fmt.Sprintf("/api/users/%d", victim.ID), "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404 on second delete, got %d", rec.Code)
		}
	})

	t.Run("users list newest first", func(t *testing.T) {
		createUser(t, mux, "amy", "amy@example.com")
		createUser(t, mux, "bea", "bea@example.com")

		rec := doJSON(t, mux, http.MethodGet, "/api/users", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		list := decode[[]domain.User](t, rec)
		if len(list) < 3 {
			t.Fatalf("expected at least 3 users, got %d", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i-1].CreatedAt.Before(list[i].CreatedAt) {
				t.Errorf("users not in non-increasing creation order")
			}
		}
	})
}

func TestProductEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := SetupPostgres(ctx, t)

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newMux(db, nil)

	body := `{"name":"Iphone","sku":"iphone1234567tt","description":"best phone","price":1000,"category_id":1,"image_url":"https://images/1.webp","is_available":true}`

	rec := doJSON(t, mux, http.MethodPost, "/api/products", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	product := decode[domain.Product](t, rec)
	if product.ID == 0 {
		t.Fatal("expected a generated product_id")
	}
	if product.SKU != "iphone1234567tt" {
		t.Fatalf("expected sku to round-trip, got %q", product.SKU)
	}

	t.Run("duplicate sku is rejected", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/products", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[map[string]string](t, rec)
		if resp["error"] != "conflict" || !strings.Contains(resp["message"], "sku") {
			t.Errorf("expected a sku conflict error, got %v", resp)
		}
	})

	t.Run("price accepted as a string", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/products",
			`{"name": "Case", "sku": "case-001", "description": "", "price": "19.99", "category_id": 2, "image_url": "", "is_available": true}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if p := decode[domain.Product](t, rec); p.Price != 19.99 {
			t.Errorf("expected price 19.99, got %v", p.Price)
		}
	})

	t.Run("negative price is a check violation", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/products",
			`{"name": "Broken", "sku": "broken-001", "price": -1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "bad_request" {
			t.Errorf("expected bad_request kind, got %q", kind)
		}
	})

	t.Run("list surfaces prices as plain numbers, newest first", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodGet, "/api/products", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		list := decode[[]domain.Product](t, rec)
		if len(list) != 2 {
			t.Fatalf("expected 2 products, got %d", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i-1].CreatedAt.Before(list[i].CreatedAt) {
				t.Errorf("products not in non-increasing creation order")
			}
		}
	})
}

func TestOrderCreation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := SetupPostgres(ctx, t)

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newMux(db, nil)
	user := createUser(t, mux, "buyer", "buyer@example.com")

	t.Run("defaults and order number are generated", func(t *testing.T) {
		order := createOrder(t, mux, user.ID)
		if order.Status != domain.OrderStatusPending {
			t.Errorf("expected pending status, got %q", order.Status)
		}
		if order.PaymentStatus != domain.PaymentStatusUnpaid {
			t.Errorf("expected unpaid payment status, got %q", order.PaymentStatus)
		}
		if !strings.HasPrefix(order.OrderNumber, "ORD-") {
			t.Errorf("expected a generated order number, got %q", order.OrderNumber)
		}
		if order.OrderDate.IsZero() {
			t.Error("expected a server-assigned order date")
		}
	})

	t.Run("unknown user is unprocessable", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/orders",
			`{"user_id": 424242, "total_amount": 100, "shipping_address": "1 Main St"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "unprocessable_entity" {
			t.Errorf("expected unprocessable_entity kind, got %q", kind)
		}
	})

	t.Run("invalid status is a check violation", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/orders",
			fmt.Sprintf(`{"user_id": %d, "total_amount": 100, "status": "teleported", "shipping_address": "1 Main St"}`, user.ID))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("duplicate order number is a conflict", func(t *testing.T) {
		body := fmt.Sprintf(`{"user_id": %d, "order_number": "ORD-FIXED", "total_amount": 100, "shipping_address": "1 Main St"}`, user.ID)
		if rec := doJSON(t, mux, http.MethodPost, "/api/orders", body); rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		rec := doJSON(t, mux, http.MethodPost, "/api/orders", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "conflict" {
			t.Errorf("expected conflict kind, got %q", kind)
		}
	})

	t.Run("negative total amount is a check violation", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/orders",
			fmt.Sprintf(`{"user_id": %d, "total_amount": -5, "shipping_address": "1 Main St"}`, user.ID))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "bad_request" {
			t.Errorf("expected bad_request kind, got %q", kind)
		}
	})

	t.Run("orders list newest first", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodGet, "/api/orders", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		list := decode[[]domain.Order](t, rec)
		if len(list) < 2 {
			t.Fatalf("expected at least 2 orders, got %d", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i-1].OrderDate.Before(list[i].OrderDate) {
				t.Errorf("orders not in non-increasing creation order")
			}
		}
	})
}

func TestOrderItemEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := SetupPostgres(ctx, t)

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux := newMux(db, nil)
	user := createUser(t, mux, "buyer", "buyer@example.com")
	order := createOrder(t, mux, user.ID)
	product := createProduct(t, mux, "iphone1234567tt", 1000)

	body := fmt.Sprintf(`{"order_id": %d, "product_id": %d, "quantity": 10, "unit_price": 1000}`, order.ID, product.ID)

	rec := doJSON(t, mux, http.MethodPost, "/api/order-items", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	item := decode[domain.OrderItem](t, rec)
	if item.Subtotal != 10000 {
		t.Fatalf("expected subtotal 10000, got %v", item.Subtotal)
	}

	t.Run("same product twice in one order is a conflict", func(t *testing.T) {
		before := rowCount(t, db, "order_items")

		rec := doJSON(t, mux, http.MethodPost, "/api/order-items", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "conflict" {
			t.Errorf("expected conflict kind, got %q", kind)
		}
		if after := rowCount(t, db, "order_items"); after != before {
			t.Errorf("row count changed from %d to %d", before, after)
		}
	})

	t.Run("unknown order is unprocessable and adds no row", func(t *testing.T) {
		before := rowCount(t, db, "order_items")

		rec := doJSON(t, mux, http.MethodPost, "/api/order-items",
			fmt.Sprintf(`{"order_id": 424242, "product_id": %d, "quantity": 1, "unit_price": 10}`, product.ID))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
		}
		if after := rowCount(t, db, "order_items"); after != before {
			t.Errorf("row count changed from %d to %d", before, after)
		}
	})

	t.Run("non-positive quantity is rejected by the store", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/api/order-items",
			fmt.Sprintf(`{"order_id": %d, "product_id": %d, "quantity": 0, "unit_price": 10}`, order.ID, product.ID))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if kind := errorKind(t, rec); kind != "bad_request" {
			t.Errorf("expected bad_request kind, got %q", kind)
		}
	})

	t.Run("referenced product cannot be deleted", func(t *testing.T) {
		_, err := db.Exec("DELETE FROM products WHERE product_id = $1", product.ID)
		if classified := database.ClassifyError(err); classified == nil || !strings.Contains(classified.Error(), "order_items") {
			t.Fatalf("expected a foreign key restriction, got %v", err)
		}
	})

	t.Run("subtotal invariant holds for every row", func(t *testing.T) {
		order2 := createOrder(t, mux, user.ID)
		rec := doJSON(t, mux, http.MethodPost, "/api/order-items",
			fmt.Sprintf(`{"order_id": %d, "product_id": %d, "quantity": 3, "unit_price": "19.99"}`, order2.ID, product.ID))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		listRec := doJSON(t, mux, http.MethodGet, "/api/order-items", "")
		items := decode[[]domain.OrderItem](t, listRec)
		if len(items) != 2 {
			t.Fatalf("expected 2 order items, got %d", len(items))
		}
		for _, it := range items {
			want := float64(it.Quantity) * it.UnitPrice
			if math.Abs(it.Subtotal-want) > 0.001 {
				t.Errorf("subtotal %v != quantity*unit_price %v", it.Subtotal, want)
			}
		}
		for i := 1; i < len(items); i++ {
			if items[i-1].OrderID < items[i].OrderID {
				t.Errorf("order items not ordered by order_id descending")
			}
		}
	})
}

func TestOrderCreatedEventFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	connStr := SetupPostgres(ctx, t)
	brokers := SetupKafka(ctx, t)

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	producer := messaging.NewProducer(brokers, "order.created")
	defer func() { _ = producer.Close() }()

	mux := newMux(db, producer)
	user := createUser(t, mux, "buyer", "buyer@example.com")
	order := createOrder(t, mux, user.ID)

	consumer := messaging.NewConsumer(brokers, "order.created", "test-notifier")
	defer func() { _ = consumer.Close() }()

	handler := notifier.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	received := make(chan []byte, 1)
	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	go func() {
		_ = consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
			if err := handler.Handle(ctx, payload); err != nil {
				return err
			}
			received <- payload
			return nil
		})
	}()

	select {
	case payload := <-received:
		var event domain.OrderCreatedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if event.OrderID != order.ID || event.OrderNumber != order.OrderNumber {
			t.Errorf("event does not match created order: %+v vs %+v", event, order)
		}
	case <-time.After(60 * time.Second):
		t.Fatal("timed out waiting for order created event")
	}
}
