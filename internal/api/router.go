package api

import (
	"net/http"
	"parking_lifecycle/internal/api/handler"
	"parking_lifecycle/internal/api/middleware"
	"parking_lifecycle/internal/metrics"
	"parking_lifecycle/internal/repository"
	"parking_lifecycle/internal/service"
	"strings"

	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Lifecycle     *service.SpaceLifecycleService
	Scheduler     *service.ExpiryScheduler
	Notifications repository.NotificationRepository
	Auth          *middleware.AuthMiddleware
	WebSockets    *handler.WebSocketManager
	Health        *handler.HealthHandler
	Metrics       *metrics.Metrics
	// TotalSpaces is the provisioning target when a request names none.
	TotalSpaces    int
	AllowedOrigins []string
}

func SetupRouter(d Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(d.AllowedOrigins))

	health := d.Health
	if health == nil {
		health = handler.NewHealthHandler(nil)
	}
	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// Push stream of space snapshots, no auth: it carries nothing the list endpoint does not.
	wsHandler := handler.NewWebSocketHandler(d.WebSockets, d.AllowedOrigins)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authMw := d.Auth
	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		spaceH := handler.NewParkingSpaceHandler(d.Lifecycle)
		anyRole := authMw.AuthorizeRole(middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleCustomer)
		staff := authMw.AuthorizeRole(middleware.RoleAdmin, middleware.RoleOperator)
		admin := authMw.AuthorizeRole(middleware.RoleAdmin)

		spaceRoutes := v1.Group("/spaces")
		{
			spaceRoutes.GET("", anyRole, spaceH.ListSpaces)
			spaceRoutes.GET("/summary", anyRole, spaceH.GetSummary)
			spaceRoutes.GET("/:number", anyRole, spaceH.GetSpace)
			spaceRoutes.POST("/:number/reserve", anyRole, spaceH.Reserve)
			spaceRoutes.POST("/:number/cancel", anyRole, spaceH.CancelReservation)
			spaceRoutes.POST("/:number/occupy", staff, spaceH.Occupy)
			spaceRoutes.POST("/:number/free", staff, spaceH.Free)
			spaceRoutes.POST("/:number/out-of-service", admin, spaceH.SetOutOfService)
			spaceRoutes.POST("/:number/in-service", admin, spaceH.SetInService)
		}

		if d.Notifications != nil {
			notifH := handler.NewNotificationHandler(d.Notifications)
			v1.GET("/notifications", staff, notifH.ListRecent)
		}

		adminH := handler.NewAdminHandler(d.Lifecycle, d.Scheduler, d.TotalSpaces)
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(admin)
		{
			adminRoutes.POST("/provision", adminH.Provision)
			adminRoutes.POST("/sweep", adminH.Sweep)
		}
	}
	return r
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		for _, a := range allowed {
			if a == "*" {
				allowOrigin = "*"
				break
			}
			if origin != "" && strings.EqualFold(a, origin) {
				allowOrigin = origin
				break
			}
		}
		if allowOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			if allowOrigin != "*" {
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
