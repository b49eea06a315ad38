package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/ragserve/internal/pkg/errcode"
	"github.com/ragserve/ragserve/internal/pkg/response"
	"github.com/ragserve/ragserve/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (h *SearchHandler) Rebuild(c *gin.Context) {
	start := time.Now()
	stats, err := h.search.Rebuild(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"vectors": stats.Vectors,
		"dim":     stats.Dim,
		"time":    time.Since(start).Seconds(),
	})
}

func (h *SearchHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	start := time.Now()
	res, err := h.search.Query(c.Request.Context(), req.Query, req.K)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"query":   res.Query,
		"lang":    res.Lang,
		"results": res.Results,
		"time":    time.Since(start).Seconds(),
	})
}

func (h *SearchHandler) Answer(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	start := time.Now()
	res, err := h.search.Answer(c.Request.Context(), req.Query, req.K)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"query":   res.Query,
		"lang":    res.Lang,
		"answer":  res.Answer,
		"results": res.Results,
		"time":    time.Since(start).Seconds(),
	})
}

func (h *SearchHandler) Stats(c *gin.Context) {
	stats, err := h.search.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"vectors": stats.Vectors,
		"dim":     stats.Dim,
	})
}
