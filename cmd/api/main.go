package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/shopkit/orders-api/internal/config"
	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/health"
	"github.com/shopkit/orders-api/internal/messaging"
	"github.com/shopkit/orders-api/internal/orderitems"
	"github.com/shopkit/orders-api/internal/orders"
	"github.com/shopkit/orders-api/internal/products"
	"github.com/shopkit/orders-api/internal/telemetry"
	"github.com/shopkit/orders-api/internal/users"
)

const (
	serviceName    = "orders-api"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := otelruntime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var producer *messaging.Producer
	if cfg.KafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(cfg.KafkaBrokers, ","), "order.created")
		defer func() { _ = producer.Close() }()
	}

	healthHandler := health.NewHandler(db, logger)
	userHandler := users.NewHandler(users.NewUserRepository(db), logger)
	productHandler := products.NewHandler(products.NewProductRepository(db), logger)
	orderHandler := orders.NewHandler(orders.NewOrderRepository(db), producer, logger)
	orderItemHandler := orderitems.NewHandler(orderitems.NewOrderItemRepository(db), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", telemetry.WithHTTPRoute(healthHandler.HandleCheck))
	mux.HandleFunc("GET /api/users", telemetry.WithHTTPRoute(userHandler.HandleList))
	mux.HandleFunc("POST /api/users", telemetry.WithHTTPRoute(userHandler.HandleCreate))
	mux.HandleFunc("GET /api/users/{id}", telemetry.WithHTTPRoute(userHandler.HandleGet))
	mux.HandleFunc("PUT /api/users/{id}", telemetry.WithHTTPRoute(userHandler.HandleUpdate))
	mux.HandleFunc("DELETE /api/users/{id}", telemetry.WithHTTPRoute(userHandler.HandleDelete))
	mux.HandleFunc("GET /api/products", telemetry.WithHTTPRoute(productHandler.HandleList))
	mux.HandleFunc("POST /api/products", telemetry.WithHTTPRoute(productHandler.HandleCreate))
	mux.HandleFunc("GET /api/orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("POST /api/orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /api/order-items", telemetry.WithHTTPRoute(orderItemHandler.HandleList))
	mux.HandleFunc("POST /api/order-items", telemetry.WithHTTPRoute(orderItemHandler.HandleCreate))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders api", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
