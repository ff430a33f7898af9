package handlers

import (
	"net/http"

	"bambu-slicer-advisor/internal/services"

	"github.com/gin-gonic/gin"
)

// FilamentsResponse GET /api/filaments 的回應
type FilamentsResponse struct {
	Filaments          []string `json:"filaments"`
	Default            string   `json:"default"`
	DefaultTemperature float32  `json:"defaultTemperature"`
	ModelDisplay       string   `json:"modelDisplay,omitempty"`
}

// Filaments 回傳可選耗材與預設值
func Filaments(service *services.AnalyzeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, FilamentsResponse{
			Filaments:          service.Catalog().Names(),
			Default:            service.DefaultFilament(),
			DefaultTemperature: service.DefaultTemperature(),
			ModelDisplay:       service.ModelDisplay(),
		})
	}
}
