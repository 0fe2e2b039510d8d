package handlers

import (
	"github.com/gin-gonic/gin"

	"mcpsentry/pkg/registry"
)

// CatalogHandler exposes the static registry and preset catalog so clients
// can preview what a plan may contain.
type CatalogHandler struct {
	reg     *registry.Registry
	presets *registry.PresetCatalog
}

func NewCatalogHandler(reg *registry.Registry, presets *registry.PresetCatalog) *CatalogHandler {
	return &CatalogHandler{reg: reg, presets: presets}
}

type categoryView struct {
	Name   string      `json:"name"`
	Checks []checkView `json:"checks"`
}

type checkView struct {
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	TargetKind  string `json:"target_kind"`
	Description string `json:"description"`
}

func (h *CatalogHandler) GetCategories(c *gin.Context) {
	var out []categoryView
	for _, category := range registry.Categories() {
		view := categoryView{Name: string(category)}
		for _, check := range h.reg.ChecksFor(category) {
			view.Checks = append(view.Checks, checkView{
				Name:        check.Name,
				Severity:    string(check.Severity),
				TargetKind:  check.TargetKind,
				Description: check.Description,
			})
		}
		out = append(out, view)
	}
	c.JSON(200, out)
}

func (h *CatalogHandler) GetPresets(c *gin.Context) {
	c.JSON(200, h.presets.List())
}
