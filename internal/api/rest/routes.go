package rest

import (
	"github.com/Dhoini/parking-payments/internal/api/rest/handlers"
	"github.com/Dhoini/parking-payments/internal/api/rest/middleware"
	"github.com/Dhoini/parking-payments/internal/repository"
	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services все операции, которые обслуживает HTTP API
type Services interface {
	handlers.VendorService
	handlers.ClientService
	handlers.AdminService
	handlers.CallbackService
}

// RouterDeps зависимости маршрутизатора
type RouterDeps struct {
	Services Services
	Vendors  repository.VendorRepository
	Verifier handlers.CallbackVerifier
	Tokens   middleware.TokenValidator
	Gatherer prometheus.Gatherer
	Health   *handlers.HealthHandler
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log.Named("http")))
	r.Use(gin.Recovery())

	if deps.Health == nil {
		deps.Health = handlers.NewHealthHandler(nil)
	}
	r.GET("/health", deps.Health.HealthCheck)

	// Prometheus метрики
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	vendorHandler := handlers.NewVendorHandler(deps.Services, log)
	clientHandler := handlers.NewClientHandler(deps.Services, log)
	adminHandler := handlers.NewAdminHandler(deps.Services, log)
	webhookHandler := handlers.NewWebhookHandler(deps.Services, deps.Verifier, log)
	jwt := middleware.NewJWTMiddleware(log, deps.Tokens)

	v1 := r.Group("/api/v1")
	{
		vendor := v1.Group("/vendor/sessions", middleware.VendorAuth(deps.Vendors, log))
		{
			vendor.POST("/update", vendorHandler.Update)
			vendor.POST("/update/list", vendorHandler.UpdateList)
			vendor.POST("/complete", vendorHandler.Complete)
			vendor.POST("/refund", vendorHandler.Refund)
		}

		client := v1.Group("/client/sessions", jwt.RequireAuth())
		{
			client.POST("/start", clientHandler.Start)
			client.POST("/complete", clientHandler.Complete)
			client.POST("/cancel", clientHandler.Cancel)
			client.GET("/:id", clientHandler.Get)
			client.POST("/:id/pay", clientHandler.Pay)
		}

		admin := v1.Group("/admin/sessions", jwt.RequireAuth(middleware.ScopeAdmin))
		{
			admin.POST("/:id/force-pay", adminHandler.ForcePay)
		}
	}

	// Вебхуки на корневом уровне роутера
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/acquiring", webhookHandler.HandleAcquiringWebhook)
	}
	return r
}
