package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"invox/internal/api"
	"invox/internal/api/handlers"
	"invox/internal/repository"
	"invox/internal/service"
	"invox/internal/textract"
	"invox/pkg/auth"
	"invox/pkg/config"
	"invox/pkg/logger"
	"invox/pkg/postgres"

	"go.uber.org/zap"
)

// @title Invox API
// @version 1.0
// @description Invoice intake and validation service: OCR text extraction, field extraction, business-rule validation and an approval workflow.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting invox service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, appLogger)
	invoiceRepo := repository.NewInvoiceRepository(db, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)

	ocrEngine := textract.NewOCREngine(cfg.OCR.Languages, appLogger)
	extractor := textract.NewExtractor(ocrEngine, appLogger)

	extractionService := service.NewExtractionService(appLogger)
	validationService := service.NewValidationService(invoiceRepo, appLogger)
	invoiceService := service.NewInvoiceService(extractor, extractionService, validationService, invoiceRepo, appLogger)
	exportService := service.NewExportService(appLogger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, appLogger)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService, exportService, appLogger)

	// Setup router
	app := api.SetupRouter(&cfg.Server, authHandler, invoiceHandler, jwtManager, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
