package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stock-backtest/internal/api/models"
	"stock-backtest/internal/strategy"
)

// StrategyHandler lists the strategies the registry can build.
type StrategyHandler struct {
	registry *strategy.Registry
}

func NewStrategyHandler(registry *strategy.Registry) *StrategyHandler {
	return &StrategyHandler{registry: registry}
}

// ListStrategies handles GET /api/v1/strategies.
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	infos := h.registry.List()
	out := models.StrategyList{Strategies: make([]models.StrategyInfo, 0, len(infos))}
	for _, info := range infos {
		out.Strategies = append(out.Strategies, models.StrategyInfo{
			Name:        info.Name,
			Version:     info.Version,
			Description: info.Description,
		})
	}
	c.JSON(http.StatusOK, out)
}
