package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/adapter/postgres"
	"github.com/YelzhanWeb/dispatch/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/dispatch/internal/app/dispatch"
	"github.com/YelzhanWeb/dispatch/internal/app/order"
	"github.com/YelzhanWeb/dispatch/internal/app/tracking"
	"github.com/YelzhanWeb/dispatch/internal/config"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/google/uuid"

	amqpAdapter "github.com/YelzhanWeb/dispatch/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/dispatch/internal/adapter/http"
)

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "", "Service mode: dispatcher, order-service, tracking-service, notification-subscriber")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config")
	port := flag.Int("port", 0, "HTTP port (overrides http.port)")
	prefetch := flag.Int("prefetch", 10, "RabbitMQ prefetch count")
	staffID := flag.String("staff-id", "", "Only show notifications for this staff member (notification-subscriber)")
	restaurantID := flag.String("restaurant-id", "", "Only show notifications for this restaurant room (notification-subscriber)")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.HTTP.Port = *port
	}

	lgr := logger.New(*mode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "dispatcher":
		err = runDispatcher(ctx, cfg, lgr, *prefetch)

	case "order-service":
		err = runOrderService(ctx, cfg, lgr)

	case "tracking-service":
		err = runTrackingService(ctx, cfg, lgr)

	case "notification-subscriber":
		var bindings []string
		bindings, err = subscriberBindings(*staffID, *restaurantID)
		if err == nil {
			err = runNotificationSubscriber(ctx, cfg, lgr, bindings)
		}

	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}

	if err != nil {
		lgr.Error("service_failed", "Service stopped with error", "runtime", nil, err)
		os.Exit(1)
	}
}

func connectDB(ctx context.Context, cfg *config.Config, lgr logger.Logger) (postgres.DB, error) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host":   cfg.Database.Host,
		"db":     cfg.Database.Database,
		"driver": cfg.Database.Driver,
	})
	return db, nil
}

func connectMQ(cfg *config.Config, lgr logger.Logger) (rabbitmq.Connection, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})
	return conn, nil
}

func runDispatcher(ctx context.Context, cfg *config.Config, lgr logger.Logger, prefetch int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := connectDB(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	mqConn, err := connectMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	// Initialize repositories
	orderRepo := postgres.NewOrderRepository(db)
	staffRepo := postgres.NewStaffRepository(db)

	// Initialize messaging
	publisher := rabbitmq.NewPublisher(mqConn)
	consumer := rabbitmq.NewConsumer(mqConn, prefetch, lgr)

	engine := dispatch.New(orderRepo, staffRepo, publisher, lgr, cfg.Dispatch)
	orderService := order.NewService(orderRepo, staffRepo, publisher, engine, domain.RoleMap(cfg.Dispatch.Roles), lgr)
	trackingService := tracking.NewService(orderRepo, staffRepo, engine, cfg.Dispatch.AcceptTimeout, lgr)
	eventHandler := amqpAdapter.NewOrderEventHandler(engine, lgr)

	handler := httpAdapter.NewRouter(lgr, httpAdapter.Routes{
		Orders:   httpAdapter.NewOrderHandler(orderService, lgr),
		Tracking: httpAdapter.NewTrackingHandler(trackingService, lgr),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := consumer.ConsumeOrderEvents(ctx, eventHandler.HandleOrderEvent); err != nil && !errors.Is(err, context.Canceled) {
			lgr.Error("consumer_error", "Error consuming order events", "runtime", nil, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			lgr.Error("dispatcher_error", "Dispatch loop failed", "runtime", nil, err)
		}
	}()

	err = serve(ctx, cfg.HTTP.Port, handler, lgr, "Dispatcher")
	// a failed listener takes the loop and the consumer down with it
	cancel()
	wg.Wait()
	return err
}

func runOrderService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	db, err := connectDB(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	mqConn, err := connectMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	orderRepo := postgres.NewOrderRepository(db)
	staffRepo := postgres.NewStaffRepository(db)
	publisher := rabbitmq.NewPublisher(mqConn)

	// the dispatcher hears about changes through the order event stream
	orderService := order.NewService(orderRepo, staffRepo, publisher, nil, domain.RoleMap(cfg.Dispatch.Roles), lgr)

	handler := httpAdapter.NewRouter(lgr, httpAdapter.Routes{
		Orders: httpAdapter.NewOrderHandler(orderService, lgr),
	})
	return serve(ctx, cfg.HTTP.Port, handler, lgr, "Order Service")
}

func runTrackingService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	db, err := connectDB(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	trackingService := tracking.NewService(postgres.NewOrderRepository(db), postgres.NewStaffRepository(db), nil, cfg.Dispatch.AcceptTimeout, lgr)

	handler := httpAdapter.NewRouter(lgr, httpAdapter.Routes{
		Tracking: httpAdapter.NewTrackingHandler(trackingService, lgr),
	})
	return serve(ctx, cfg.HTTP.Port, handler, lgr, "Tracking Service")
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger, bindings []string) error {
	mqConn, err := connectMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	consumer := rabbitmq.NewConsumer(mqConn, 1, lgr)
	notificationHandler := amqpAdapter.NewNotificationHandler(lgr)

	lgr.Info("service_started", "Notification Subscriber started", "startup", map[string]interface{}{
		"bindings": bindings,
	})

	err = consumer.ConsumeNotifications(ctx, bindings, notificationHandler.HandleNotification)
	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// subscriberBindings always includes the global channel.
func subscriberBindings(staffID, restaurantID string) ([]string, error) {
	bindings := []string{rabbitmq.GlobalKey}
	if staffID != "" {
		id, err := uuid.Parse(staffID)
		if err != nil {
			return nil, fmt.Errorf("invalid --staff-id: %w", err)
		}
		bindings = append(bindings, rabbitmq.StaffKey(id))
	}
	if restaurantID != "" {
		id, err := uuid.Parse(restaurantID)
		if err != nil {
			return nil, fmt.Errorf("invalid --restaurant-id: %w", err)
		}
		bindings = append(bindings, rabbitmq.RestaurantKey(id))
	}
	return bindings, nil
}

func serve(ctx context.Context, port int, handler http.Handler, lgr logger.Logger, name string) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("%s started on port %d", name, port), "startup", map[string]interface{}{
		"port": port,
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		lgr.Info("shutdown_initiated", fmt.Sprintf("Shutting down %s", name), "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
