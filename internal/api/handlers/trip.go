package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/langchou/tripgazer/internal/spatial"
	"github.com/langchou/tripgazer/internal/tripview"
	"github.com/langchou/tripgazer/internal/viewstate"
)

const (
	defaultSummaryDays = 30
	maxSummaryDays     = 366
)

// ListVehicles 获取车辆列表及行程汇总
func (h *Handler) ListVehicles(c *gin.Context) {
	summaries, err := h.tripService.VehicleSummaries(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list vehicles")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

// ListTrips 计算车辆行程视图，查询参数覆盖并更新已保存的视图状态
func (h *Handler) ListTrips(c *gin.Context) {
	vin := c.Param("vin")
	patch, err := parseViewQuery(c.Request.URL.Query())
	if err != nil {
		h.respondError(c, err, "Invalid query")
		return
	}

	ctx := c.Request.Context()
	result, err := h.tripService.View(ctx, vin, patch)
	if err != nil {
		h.respondError(c, err, "Failed to build trip view")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    result,
		"columns": h.tripService.Columns(ctx),
	})
}

// ListCountries 获取车辆行程涉及的国家
func (h *Handler) ListCountries(c *gin.Context) {
	countries, err := h.trips.ListCountries(c.Request.Context(), c.Param("vin"))
	if err != nil {
		h.respondError(c, err, "Failed to list countries")
		return
	}
	if countries == nil {
		countries = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"data": countries})
}

// DailySummary 按天聚合的行程数据
func (h *Handler) DailySummary(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultSummaryDays)))
	if err != nil || days < 1 || days > maxSummaryDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("days must be between 1 and %d", maxSummaryDays)})
		return
	}

	buckets, err := h.trips.DailySummary(c.Request.Context(), c.Param("vin"), days)
	if err != nil {
		h.respondError(c, err, "Failed to load daily summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": buckets})
}

// GetViewState 获取车辆视图状态
func (h *Handler) GetViewState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tripService.LoadState(c.Request.Context(), c.Param("vin"))})
}

// UpdateViewState 局部更新车辆视图状态
func (h *Handler) UpdateViewState(c *gin.Context) {
	var patch viewstate.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	vs, err := h.tripService.SaveState(c.Request.Context(), c.Param("vin"), patch)
	if err != nil {
		h.respondError(c, err, "Failed to save view state")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vs})
}

// ClearFilters 清除空间过滤
func (h *Handler) ClearFilters(c *gin.Context) {
	vs, err := h.tripService.ClearFilters(c.Request.Context(), c.Param("vin"))
	if err != nil {
		h.respondError(c, err, "Failed to clear filters")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vs})
}

// SetSpatialFilter 设置空间过滤，其余角色随之清除
func (h *Handler) SetSpatialFilter(c *gin.Context) {
	var filter spatial.Filter
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid spatial filter: " + err.Error()})
		return
	}

	vs, err := h.tripService.SaveState(c.Request.Context(), c.Param("vin"), viewstate.Patch{Spatial: &filter})
	if err != nil {
		h.respondError(c, err, "Failed to save spatial filter")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vs})
}

// GetColumns 获取全局列设置
func (h *Handler) GetColumns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tripService.Columns(c.Request.Context())})
}

// UpdateColumns 保存全局列设置
func (h *Handler) UpdateColumns(c *gin.Context) {
	var cols viewstate.ColumnState
	if err := c.ShouldBindJSON(&cols); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	saved, err := h.tripService.SaveColumns(c.Request.Context(), cols)
	if err != nil {
		h.respondError(c, err, "Failed to save columns")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": saved})
}

// GetTripRoute 获取行程地图轨迹，没有轨迹点时以起止点估算
func (h *Handler) GetTripRoute(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	ctx := c.Request.Context()
	trip, err := h.trips.GetByID(ctx, id)
	if err != nil {
		h.respondError(c, err, "Failed to load trip")
		return
	}

	points, err := h.routes.ListByTripID(ctx, id)
	if err != nil {
		h.respondError(c, err, "Failed to load route")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tripview.PlanRoute(trip, points)})
}
