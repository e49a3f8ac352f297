package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"

	"invox/docs"
	"invox/internal/api/handlers"
	"invox/pkg/auth"
	"invox/pkg/config"
	"invox/pkg/middleware"
)

func SetupRouter(
	cfg *config.ServerConfig,
	authHandler *handlers.AuthHandler,
	invoiceHandler *handlers.InvoiceHandler,
	jwtManager *auth.JWTManager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    cfg.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(fiberlogger.New())

	_ = docs.SwaggerInfo // importing docs registers the swagger doc via init()
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes (public)
	authGroup := app.Group("/user/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))

	invoices := protected.Group("/invoices")
	invoices.Post("/upload", invoiceHandler.Upload)
	invoices.Get("", invoiceHandler.List)
	invoices.Get("/export", invoiceHandler.Export)
	invoices.Get("/:id", invoiceHandler.Get)
	invoices.Post("/:id/approve", invoiceHandler.Approve)
	invoices.Delete("/:id", invoiceHandler.Delete)

	return app
}
