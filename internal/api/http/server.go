package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/service"
)

// ServerDeps lists what the HTTP surface needs.
type ServerDeps struct {
	Name           string
	Version        string
	Store          string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Tickets        *service.TicketService
	Auth           *service.AuthService
	Identity       *auth.Identity
	Health         map[string]persistence.Pinger
}

// NewServer builds the Fiber app with middlewares and routes registered.
func NewServer(deps ServerDeps) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               deps.Name,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	RegisterMiddlewares(app, logger, deps.Metrics, deps.RequestTimeout)

	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(deps.Name, deps.Version, deps.Store, deps.Health),
		Auth:           handlers.NewAuthHandler(deps.Auth),
		Tickets:        handlers.NewTicketsHandler(deps.Tickets),
		Workflow:       handlers.NewWorkflowHandler(deps.Tickets.Workflow()),
		AuthMiddleware: auth.NewAuthMiddleware(deps.Identity),
		Metrics:        deps.Metrics,
	})
	return app
}
