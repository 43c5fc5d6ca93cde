package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jengzang/trip-recorder-go/internal/service"
	"github.com/jengzang/trip-recorder-go/pkg/response"
)

// TrophyHandler handles HTTP requests for reward progress
type TrophyHandler struct {
	service *service.TrophyService
}

// NewTrophyHandler creates a new trophy handler
func NewTrophyHandler(service *service.TrophyService) *TrophyHandler {
	return &TrophyHandler{service: service}
}

// GetTrophies handles GET /api/v1/trophies
func (h *TrophyHandler) GetTrophies(c *gin.Context) {
	progress, err := h.service.GetProgress()
	if err != nil {
		response.InternalError(c, "Failed to get trophy progress", err)
		return
	}
	response.Success(c, progress)
}
