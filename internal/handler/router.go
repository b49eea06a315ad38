package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/ragserve/internal/middleware"
)

type RouterDeps struct {
	Search    *SearchHandler
	JWTSecret []byte
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	queryGroup := api.Group("")
	if deps.RateLimit > 0 {
		queryGroup.Use(middleware.RateLimit(deps.RateLimit))
	}
	queryGroup.POST("/query", deps.Search.Query)
	queryGroup.POST("/answer", deps.Search.Answer)

	adminGroup := api.Group("")
	if len(deps.JWTSecret) > 0 {
		adminGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	}
	adminGroup.POST("/rebuild", deps.Search.Rebuild)

	api.GET("/stats", deps.Search.Stats)
}
