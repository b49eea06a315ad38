package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragserve/ragserve/internal/pkg/errcode"
	"github.com/ragserve/ragserve/internal/pkg/errs"
	"github.com/ragserve/ragserve/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, errs.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, errs.ErrIndexMissing):
		response.Error(c, errcode.ErrIndexMissing, err.Error())
	case errors.Is(err, errs.ErrEmptyCorpus):
		response.Error(c, errcode.ErrEmptyCorpus, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, err.Error())
	case errors.Is(err, errs.ErrConfig):
		response.Error(c, errcode.ErrBadConfig, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
