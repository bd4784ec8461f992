package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"vantage/internal/config"
	"vantage/internal/http"
	"vantage/internal/reports"
)

// publicCORSConfig is the CORS setup shared by all public endpoints; beacons
// are sent cross-origin from tracked sites.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes returns a route mount function bound to the given report
// cache. The cache is the only piece of mutable state the route layer
// carries; everything else comes from the server's context.
func MountAppRoutes(cache *reports.ReportCache) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		cfg := config.GetConfig()

		// Rate limiting only applies in production; in development/test it
		// would interfere with testing.
		conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
			return func(c *fiber.Ctx) error {
				if cfg.IsProduction() {
					return limiter(c)
				}
				return c.Next()
			}
		}

		// Beacon ingestion: 70 req/min per IP handles legitimate analytics
		// traffic while preventing abuse.
		publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
			cartridgemiddleware.WithMax(70),
			cartridgemiddleware.WithDuration(time.Minute),
		))

		publicAPIConfig := &cartridge.RouteConfig{
			EnableCORS:       true,
			CustomMiddleware: []fiber.Handler{publicRateLimiter},
			CORSConfig:       publicCORSConfig,
		}

		dashboard := http.NewDashboardHandler(cache)

		// Health check endpoint
		srv.Get("/_health", http.HealthIndexAction)
		srv.Head("/_health", http.HealthIndexAction)

		// === PUBLIC API ROUTES (beacon ingestion) ===
		srv.Post("/api/event", http.CreateEventAction, publicAPIConfig)
		srv.Options("/api/event", func(ctx *cartridge.Context) error {
			return ctx.SendStatus(fiber.StatusNoContent)
		}, publicAPIConfig)

		// === DASHBOARD API ROUTES ===
		srv.Post("/api/dashboard/graph", dashboard.GraphAction)
		srv.Post("/api/dashboard/stats", dashboard.StatsAction)
		srv.Post("/api/dashboard/dimension", dashboard.DimensionAction)
		srv.Post("/api/dashboard/overview", dashboard.OverviewAction)
		srv.Get("/api/dashboard/online/:project", dashboard.OnlineUsersAction)

		// === PROJECT / ENTITY ADMINISTRATION ===
		srv.Get("/api/projects", http.ProjectsIndexAction)
		srv.Post("/api/projects", http.ProjectCreateAction)
		srv.Get("/api/projects/:project", http.ProjectShowAction)
		srv.Delete("/api/projects/:project", http.ProjectDeleteAction)
		srv.Post("/api/entities", http.EntityCreateAction)
	}
}
