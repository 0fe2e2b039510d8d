package routes

import (
	"github.com/gin-gonic/gin"

	"mcpsentry/internal/handlers"
	"mcpsentry/pkg/registry"
)

func InitCatalogRoutes(router *gin.RouterGroup, reg *registry.Registry, presets *registry.PresetCatalog) {
	handler := handlers.NewCatalogHandler(reg, presets)

	router.GET("/categories", handler.GetCategories)
	router.GET("/presets", handler.GetPresets)
}
