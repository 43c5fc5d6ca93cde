package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/trip-recorder-go/internal/models"
	"github.com/jengzang/trip-recorder-go/internal/service"
	"github.com/jengzang/trip-recorder-go/pkg/response"
)

// TripHandler handles HTTP requests for trips
type TripHandler struct {
	service *service.TripService
}

// NewTripHandler creates a new trip handler
func NewTripHandler(service *service.TripService) *TripHandler {
	return &TripHandler{service: service}
}

// RatingRequest is the body of PUT /api/v1/trips/:uuid/rating
type RatingRequest struct {
	Rating models.Rating `json:"rating" binding:"required"`
}

// GetTrips handles GET /api/v1/trips
func (h *TripHandler) GetTrips(c *gin.Context) {
	var filter models.TripFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	if filter.ActivityType != "" {
		if _, err := models.ParseActivityType(filter.ActivityType); err != nil {
			response.BadRequest(c, "Invalid activityType parameter", err)
			return
		}
	}

	trips, total, err := h.service.GetTrips(filter)
	if err != nil {
		response.InternalError(c, "Failed to get trips", err)
		return
	}

	// Calculate pagination info
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}
	if filter.PageSize > 1000 {
		filter.PageSize = 1000
	}
	totalPages := int(total) / filter.PageSize
	if int(total)%filter.PageSize > 0 {
		totalPages++
	}
	if trips == nil {
		trips = []models.Trip{}
	}

	response.Success(c, models.TripsResponse{
		Data:       trips,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	})
}

// GetTrip handles GET /api/v1/trips/:uuid
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.service.GetTrip(c.Param("uuid"))
	if err != nil {
		response.InternalError(c, "Failed to get trip", err)
		return
	}
	if trip == nil {
		response.NotFound(c, "Trip not found")
		return
	}

	response.Success(c, trip)
}

// GetTripGeoJSON handles GET /api/v1/trips/:uuid/geojson
func (h *TripHandler) GetTripGeoJSON(c *gin.Context) {
	fc, err := h.service.GetTripGeoJSON(c.Param("uuid"))
	if err != nil {
		response.InternalError(c, "Failed to render trip", err)
		return
	}
	if fc == nil {
		response.NotFound(c, "Trip not found")
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

// RateTrip handles PUT /api/v1/trips/:uuid/rating
func (h *TripHandler) RateTrip(c *gin.Context) {
	var req RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	ok, err := h.service.RateTrip(c.Param("uuid"), req.Rating)
	if errors.Is(err, service.ErrInvalidRating) {
		response.BadRequest(c, "Rating must be one of unrated, good, bad, mixed", err)
		return
	}
	if err != nil {
		response.InternalError(c, "Failed to rate trip", err)
		return
	}
	if !ok {
		response.NotFound(c, "Trip not found")
		return
	}

	response.Success(c, gin.H{"uuid": c.Param("uuid"), "rating": req.Rating})
}
