// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"analog-forecast-api/internal/application/forecast"
	"analog-forecast-api/internal/interfaces/http/dto"
	"analog-forecast-api/pkg/logger"
)

// ForecastHandler 预报处理器
type ForecastHandler struct {
	svc *forecast.Service
}

// NewForecastHandler 创建预报处理器
func NewForecastHandler(svc *forecast.Service) *ForecastHandler {
	return &ForecastHandler{svc: svc}
}

// Forecast 类比集合预报
// @Summary 类比集合预报
// @Description 按查询向量检索历史相似模式并聚合为分位数预报
// @Tags Forecast
// @Accept json
// @Produce json
// @Param body body dto.ForecastRequest true "预报请求"
// @Success 200 {object} dto.Response[dto.ForecastResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/forecast [post]
func (h *ForecastHandler) Forecast(c *gin.Context) {
	var req dto.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.HorizonKey, req.Horizon)

	result, err := h.svc.Forecast(ctx, forecast.Query{
		Horizon:   req.Horizon,
		Embedding: req.Embedding,
		K:         req.TopK,
		Variables: req.Variables,
	})
	if err != nil {
		logger.Warn(ctx, "forecast request failed", "error", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.NewForecastResponse(result))
}

// Horizons 已配置时效列表
// @Summary 已配置时效列表
// @Description 返回已构建索引的预报时效
// @Tags Forecast
// @Produce json
// @Success 200 {object} dto.Response[dto.HorizonsResponse]
// @Router /v1/horizons [get]
func (h *ForecastHandler) Horizons(c *gin.Context) {
	dim, backend := h.svc.IndexInfo()
	dto.Success(c, dto.HorizonsResponse{
		Horizons: h.svc.Horizons(),
		Dim:      dim,
		Backend:  backend,
	})
}
