package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridian-erp/meridian-erp/internal/accounts"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/payments"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/reconciliation"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	audit := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	accountsService := accounts.NewService(accounts.NewRepository(pool))
	accountsHandler := accounts.NewHandler(logger, accountsService)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), audit, logger, cfg.BaseCurrency)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	registry := invoices.NewRegistry(
		invoices.NewSalesInvoiceSource(),
		invoices.NewSupplierInvoiceSource(),
		invoices.NewExpenseClaimSource(),
	)
	recalculator := invoices.NewRecalculator(registry, payments.ClearedAmounts{})

	paymentsService := payments.NewService(
		payments.NewRepository(pool, ledgerService, registry, recalculator), audit, logger)
	paymentsHandler := payments.NewHandler(logger, paymentsService, idempotency)

	periodsService := periods.NewService(periods.NewRepository(pool), nil, audit, logger)
	periodsHandler := periods.NewHandler(logger, periodsService)

	reconciliationService := reconciliation.NewService(reconciliation.NewRepository(pool), audit, logger)
	reconciliationHandler := reconciliation.NewHandler(logger, reconciliationService)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Pool:                  pool,
		AccountsHandler:       accountsHandler,
		LedgerHandler:         ledgerHandler,
		PaymentsHandler:       paymentsHandler,
		PeriodsHandler:        periodsHandler,
		ReconciliationHandler: reconciliationHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	// Background housekeeping: expired idempotency keys are swept hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := idempotency.Cleanup(ctx, cfg.IdempotencyRetention); err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
				}
			}
		}
	}()

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
