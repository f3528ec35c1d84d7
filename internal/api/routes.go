package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropified/suredone-adapter/internal/store"
)

func RegisterRoutes(app *fiber.App, nc *nats.Conn, st store.Store, handler *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// API routes
	v1 := app.Group("/api/v1")

	v1.Post("/stores/validate", handler.ValidateStore)
	v1.Post("/stores", handler.ConnectStore)
	v1.Delete("/stores/:username", handler.DisconnectStore)

	v1.Get("/stores/:username/products", handler.GetProducts)
	v1.Get("/stores/:username/products/:guid", handler.GetProduct)
	v1.Post("/stores/:username/products/bulk/:action", handler.BulkProducts)
	v1.Delete("/stores/:username/products", handler.DeleteProducts)
	v1.Get("/stores/:username/channels/:channel/categories", handler.SearchCategories)

	v1.Get("/stores/:username/orders", handler.GetOrders)
	v1.Get("/stores/:username/orders/:id", handler.GetOrder)
	v1.Put("/stores/:username/orders/:id", handler.UpdateOrder)

	v1.Get("/stores/:username/logs/last", handler.GetLastLog)
	v1.Get("/stores/:username/options/:type", handler.GetAccountOptions)

	v1.Post("/stores/:username/channels/authorize", handler.AuthorizeChannel)
	v1.Post("/stores/:username/channels/instances", handler.AddChannelInstance)
	v1.Delete("/stores/:username/channels/:channel", handler.RemoveChannelAuth)

	v1.Post("/exports", handler.CreateExportConfig)
	v1.Post("/exports/:id/run", handler.RunExport)
}
