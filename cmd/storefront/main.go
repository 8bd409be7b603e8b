package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment/gateway"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/transport"
)

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.Log)

	log.Info().Str("env", cfg.App.Env).Msg("Starting storefront-service...")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	pg, err := db.New(startCtx, cfg.Postgres)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	if err := pg.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	transactor := db.NewTransactor(pg.Pool)

	catalogRepository := catalog.NewRepository(pg.Pool)
	orderRepository := order.NewRepository(pg.Pool)
	orderSvc := order.NewService(orderRepository, catalogRepository, transactor)

	enabled := []payment.Processor{
		payment.NewCashOnDeliveryProcessor(),
		payment.NewBankTransferProcessor(cfg.Payment.BankAccount),
	}
	if cfg.Payment.Sandbox.Enabled {
		sandboxOpts := gateway.SandboxOptions{
			DeclineCardSuffix: cfg.Payment.Sandbox.DeclineCardSuffix,
			RedirectBaseURL:   cfg.Payment.Sandbox.RedirectBaseURL,
		}
		enabled = append(enabled,
			payment.NewCardProcessor(gateway.NewSandbox("card", gateway.ModeSync, sandboxOpts)),
			payment.NewWalletProcessor(gateway.NewSandbox("wallet", gateway.ModeAsync, sandboxOpts)),
			payment.NewPayPalProcessor(gateway.NewSandbox("paypal", gateway.ModeRedirect, sandboxOpts)),
		)
		log.Warn().Msg("Sandbox gateways enabled: card, wallet and paypal charges are kept in memory only")
	} else {
		log.Info().Msg("Sandbox gateways disabled: card, wallet and paypal payments are unavailable")
	}
	processors := payment.NewRegistry(enabled...)
	paymentSvc := payment.NewService(
		payment.NewRepository(pg.Pool),
		orderSvc,
		payment.NewMethodRepository(pg.SQLX()),
		processors,
		transactor,
		cfg.Payment,
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(orderSvc, paymentSvc, pg.Pool),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("Could not listen")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Storefront-service stopped gracefully.")
}
