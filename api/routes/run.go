package routes

import (
	"github.com/gin-gonic/gin"

	"mcpsentry/internal/handlers"
	"mcpsentry/internal/services"
)

func InitRunRoutes(router *gin.RouterGroup, runService services.RunServiceMethods) {
	handler := handlers.NewRunHandler(runService)

	runRoutes := router.Group("/runs")
	{
		runRoutes.POST("", handler.StartRun)
		runRoutes.GET("", handler.ListRuns)
		runRoutes.GET("/:id", handler.GetRun)
		runRoutes.DELETE("/:id", handler.DeleteRun)
		runRoutes.POST("/:id/cancel", handler.CancelRun)
		runRoutes.GET("/:id/discovery", handler.GetDiscovery)
		runRoutes.GET("/:id/security-profile", handler.GetSecurityProfile)
		runRoutes.GET("/:id/plan", handler.GetTestPlan)
		runRoutes.GET("/:id/mission-briefing", handler.GetMissionBriefing)
		runRoutes.GET("/:id/results", handler.GetResults)
		runRoutes.GET("/:id/agent-stories", handler.GetStories)
		runRoutes.GET("/:id/agent-stories/:story/transcript", handler.GetTranscript)
	}

	router.POST("/compare", handler.Compare)
	router.GET("/queue", handler.QueueStatus)
}
