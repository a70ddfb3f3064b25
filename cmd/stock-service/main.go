package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/larder/larder-backend/internal/stock/consumers"
	"github.com/larder/larder-backend/internal/stock/events"
	"github.com/larder/larder-backend/internal/stock/handler"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/database"
	"github.com/larder/larder-backend/pkg/httputil"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	ingredientRepo := repository.NewIngredientRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	deviationRepo := repository.NewDeviationRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	// Initialize services
	warehouseID := cfg.Warehouse.ID
	ledgerService := service.NewLedgerService(ingredientRepo, transactionRepo, publisher, warehouseID, log)
	reservations := service.NewReservationManager(transactionRepo, warehouseID, cfg.Reservation.LockTimeout, log)
	intakeService := service.NewIntakeService(ingredientRepo, deliveryRepo, publisher, warehouseID, log)
	transferService := service.NewTransferService(ingredientRepo, transferRepo, reservations, publisher, warehouseID, log)
	reconcileService := service.NewReconcileService(transactionRepo, usageRepo, deviationRepo, ingredientRepo, publisher, cfg.Reconciliation, log)
	reorderScanner := service.NewReorderScanner(ingredientRepo, ledgerService, publisher, warehouseID, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reservations live in memory only; rebuild them from open transfers
	if err := reservations.Rebuild(ctx, transferRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to rebuild reservations from open transfers")
	}

	// Start sales usage consumer
	usageConsumer, err := consumers.NewSalesUsageConsumer(rmq, usageRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sales usage consumer")
	}
	if err := usageConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sales usage consumer")
	}

	// Start the periodic reconciliation and reorder scan
	scheduler := service.NewScheduler(reconcileService, reorderScanner, cfg.Reconciliation.ScanInterval, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Initialize handlers
	ingredientHandler := handler.NewIngredientHandler(ingredientRepo, log)
	ledgerHandler := handler.NewLedgerHandler(ledgerService, reservations, log)
	deliveryHandler := handler.NewDeliveryHandler(intakeService, log)
	transferHandler := handler.NewTransferHandler(transferService, log)
	deviationHandler := handler.NewDeviationHandler(reconcileService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// CORS for the back-office dashboard
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Dev frontends
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// *.larder.app and larder.app itself
			if len(origin) > 11 && origin[len(origin)-11:] == ".larder.app" {
				return true
			}
			return origin == "https://larder.app"
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		// Catalog routes
		r.Route("/ingredients", func(r chi.Router) {
			r.Get("/", ingredientHandler.List)
			r.Post("/", ingredientHandler.Create)
			r.Get("/{id}", ingredientHandler.Get)
			r.Put("/{id}", ingredientHandler.Update)
			r.Delete("/{id}", ingredientHandler.Deactivate)
			r.Get("/{id}/stock", ledgerHandler.Stock)
		})

		// Ledger routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", ledgerHandler.List)
			r.Post("/", ledgerHandler.Record)
			r.Get("/{id}", ledgerHandler.Get)
		})
		r.Get("/on-hand", ledgerHandler.OnHand)

		// Delivery routes
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Post("/", deliveryHandler.Create)
			r.Get("/{id}", deliveryHandler.Get)
			r.Post("/{id}/confirm", deliveryHandler.Confirm)
		})

		// Transfer routes
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", transferHandler.List)
			r.Post("/", transferHandler.Create)
			r.Get("/{id}", transferHandler.Get)
			r.Post("/{id}/submit", transferHandler.Submit)
			r.Post("/{id}/dispatch", transferHandler.Dispatch)
			r.Post("/{id}/receive", transferHandler.Receive)
			r.Post("/{id}/cancel", transferHandler.Cancel)
		})

		// Reconciliation routes
		r.Route("/deviations", func(r chi.Router) {
			r.Get("/", deviationHandler.List)
			r.Get("/{id}", deviationHandler.Get)
			r.Put("/{id}/notes", deviationHandler.Annotate)
		})
		r.Post("/reconcile", deviationHandler.Reconcile)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer and scheduler
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
