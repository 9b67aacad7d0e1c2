package handlers

import (
	"aromabridge/internal/logger"
	"aromabridge/internal/service"
	"aromabridge/internal/session"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the bridge HTTP layer to services, the message bus and
// logging.
type Handler struct {
	services *service.Service
	bus      *session.Bus
	log      *logger.Logger
}

// NewHandler constructs the bridge HTTP handler with dependencies.
func NewHandler(services *service.Service, bus *session.Bus, log *logger.Logger) *Handler {
	return &Handler{services: services, bus: bus, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// WebSocket stream of protocol messages — same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware)
	{
		h.registerDeviceRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("", h.listDevices)
		devices.GET("/:id/state", h.deviceState)
		// Body example: {"on":true}
		devices.POST("/:id/power", h.setPower)
		devices.POST("/:id/fan", h.setFan)

		devices.GET("/:id/schedule", h.getSchedule)
		devices.PUT("/:id/schedule", h.setSchedule)
		devices.PUT("/:id/schedule/blocks/:n", h.setScheduleBlock)
		devices.DELETE("/:id/schedule/blocks/:n", h.clearScheduleBlock)
		devices.POST("/:id/schedule/sync", h.syncSchedule)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
