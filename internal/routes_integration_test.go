package internal

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"

	"vantage/internal/reports"
)

func TestAppRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes(reports.NewReportCache(16)),
	})
	routes := srv.App.GetRoutes(true)

	registered := make(map[string]bool, len(routes))
	for _, route := range routes {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		fiber.MethodGet + " /_health",
		fiber.MethodPost + " /api/event",
		fiber.MethodPost + " /api/dashboard/graph",
		fiber.MethodPost + " /api/dashboard/stats",
		fiber.MethodPost + " /api/dashboard/dimension",
		fiber.MethodPost + " /api/dashboard/overview",
		fiber.MethodGet + " /api/dashboard/online/:project",
		fiber.MethodGet + " /api/projects",
		fiber.MethodPost + " /api/projects",
		fiber.MethodGet + " /api/projects/:project",
		fiber.MethodDelete + " /api/projects/:project",
		fiber.MethodPost + " /api/entities",
	}

	for _, want := range expected {
		require.Truef(t, registered[want], "expected route %s to be registered", want)
	}
}
