package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/trip-recorder-go/internal/config"
	"github.com/jengzang/trip-recorder-go/internal/handler"
	"github.com/jengzang/trip-recorder-go/internal/middleware"
	"github.com/jengzang/trip-recorder-go/internal/repository"
	"github.com/jengzang/trip-recorder-go/internal/rewards"
	"github.com/jengzang/trip-recorder-go/internal/service"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, db *sql.DB) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger("/health"))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		status, message := http.StatusOK, "Trip recorder API is running"
		if err := db.Ping(); err != nil {
			status, message = http.StatusServiceUnavailable, "database unavailable"
		}
		c.JSON(status, gin.H{
			"status":  http.StatusText(status),
			"message": message,
		})
	})

	tripService := service.NewTripService(repository.NewTripRepository(db))
	trophyService := service.NewTrophyService(rewards.NewProgressTracker(repository.NewTrophyRepository(db)))
	trips := handler.NewTripHandler(tripService)
	trophies := handler.NewTrophyHandler(trophyService)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 60
	}
	writes := middleware.NewRateLimiter(limit, time.Minute, nil)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 行程
		tripGroup := api.Group("/trips")
		{
			tripGroup.GET("", trips.GetTrips)
			tripGroup.GET("/:uuid", trips.GetTrip)
			tripGroup.GET("/:uuid/geojson", trips.GetTripGeoJSON)
			tripGroup.PUT("/:uuid/rating", writes.Middleware(), trips.RateTrip)
		}

		// 奖杯进度
		api.GET("/trophies", trophies.GetTrophies)
	}

	return r
}
