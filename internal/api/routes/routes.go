// server/internal/api/routes/routes.go
package routes

import (
	"net/http"
	"time"

	"ku-fleet-api-server/config"
	"ku-fleet-api-server/internal/analytics"
	"ku-fleet-api-server/internal/api/handlers"
	"ku-fleet-api-server/internal/api/middleware"
	"ku-fleet-api-server/internal/auth"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/retention"
	"ku-fleet-api-server/internal/socket"
	"ku-fleet-api-server/internal/store"
	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the components the HTTP surface is built on. Metrics and
// HealthChecks are optional.
type Deps struct {
	Config       config.Config
	Location     *time.Location
	Stores       store.Stores
	Tracking     *tracking.Service
	Runner       *jobs.Runner
	Sweeper      *retention.Sweeper
	Analytics    *analytics.Generator
	Hub          *socket.Hub
	Metrics      http.Handler
	WSGauge      handlers.ClientGauge
	HealthChecks map[string]handlers.HealthCheck
}

// SetupRouter wires every handler under /api/v1.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	tripHandler := &handlers.TripHandler{Tracking: d.Tracking, Sweeper: d.Sweeper, Location: d.Location}
	vehicleHandler := &handlers.VehicleHandler{Vehicles: d.Stores.Vehicles, Tracking: d.Tracking}
	alertHandler := &handlers.AlertHandler{Tracking: d.Tracking, Alerts: d.Stores.Alerts}
	feedbackHandler := &handlers.FeedbackHandler{Tracking: d.Tracking}
	jobHandler := &handlers.JobHandler{Runner: d.Runner}
	analyticsHandler := &handlers.AnalyticsHandler{Generator: d.Analytics}
	healthHandler := &handlers.HealthHandler{Checks: d.HealthChecks}
	webSocketHandler := &handlers.WebSocketHandler{Hub: d.Hub, Secret: d.Config.JWT.Secret, Gauge: d.WSGauge}

	router.GET("/health", healthHandler.Health)
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	authenticate := middleware.Authenticate(d.Config.JWT.Secret)
	adminOnly := middleware.Authorize(auth.RoleAdmin)
	staff := middleware.Authorize(auth.RoleAdmin, auth.RoleDriver)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		// Hardware, the panic button and passengers post without a session.
		public := apiV1.Group("/")
		{
			public.POST("/trips/log", tripHandler.LogPosition)
			public.POST("/alerts", alertHandler.CreateAlert)
			public.POST("/feedback", feedbackHandler.CreateFeedback)
		}

		protected := apiV1.Group("/")
		protected.Use(authenticate, staff)
		{
			trips := protected.Group("/trips")
			{
				trips.GET("", tripHandler.ListTrips)
				trips.GET("/summary/daily", tripHandler.DailySummary)
				trips.POST("/end", tripHandler.EndTrip)
				trips.DELETE("/cleanup", adminOnly, tripHandler.Cleanup)
			}

			vehicles := protected.Group("/vehicles")
			{
				vehicles.GET("", vehicleHandler.ListVehicles)
				vehicles.POST("", adminOnly, vehicleHandler.CreateVehicle)
				vehicles.GET("/:id", vehicleHandler.GetVehicle)
				vehicles.DELETE("/:id", adminOnly, vehicleHandler.DeactivateVehicle)
				vehicles.PUT("/:id/status", adminOnly, vehicleHandler.UpdateStatus)
				vehicles.GET("/:id/location", vehicleHandler.GetLocation)
				vehicles.PUT("/:id/location", vehicleHandler.UpdateLocation)
			}

			alerts := protected.Group("/alerts")
			{
				alerts.GET("/stats", alertHandler.Stats)
				alerts.PUT("/:id/resolve", adminOnly, alertHandler.ResolveAlert)
			}

			protected.GET("/analytics/daily", analyticsHandler.Daily)

			jobsGroup := protected.Group("/jobs")
			jobsGroup.Use(adminOnly)
			{
				jobsGroup.GET("/health", jobHandler.Health)
				jobsGroup.GET("/:queue/failed", jobHandler.Failed)
			}
		}
	}

	return router
}
