package routes

import (
	"github.com/gin-gonic/gin"

	"mcpsentry/internal/events"
	"mcpsentry/internal/services"
	"mcpsentry/pkg/registry"
)

func InitRouter(runService services.RunServiceMethods, reg *registry.Registry, presets *registry.PresetCatalog, hub *events.Hub) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	{
		InitRunRoutes(api, runService)
		InitCatalogRoutes(api, reg, presets)
	}

	// Event bus: advisory, consumers reconstruct state from the read
	// endpoints above.
	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})

	return router
}
