package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/metrics"
	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/repository"
	"github.com/langchou/tripgazer/internal/service"
	"github.com/langchou/tripgazer/internal/state"
	"github.com/langchou/tripgazer/internal/tripview"
	"github.com/langchou/tripgazer/pkg/ws"
)

// TripReader 行程查询
type TripReader interface {
	GetByID(ctx context.Context, id int64) (*models.Trip, error)
	ListCountries(ctx context.Context, vin string) ([]string, error)
	DailySummary(ctx context.Context, vin string, days int) ([]*models.PeriodBucket, error)
}

// RouteReader 轨迹查询
type RouteReader interface {
	ListByTripID(ctx context.Context, tripID int64) ([]*models.RoutePoint, error)
}

// Handler HTTP 处理器
type Handler struct {
	logger         *zap.Logger
	trips          TripReader
	routes         RouteReader
	tripService    *service.TripService
	geocodeService *service.GeocodeService
	wsHub          *ws.Hub
	upgrader       websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	trips TripReader,
	routes RouteReader,
	tripService *service.TripService,
	geocodeService *service.GeocodeService,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:         logger,
		trips:          trips,
		routes:         routes,
		tripService:    tripService,
		geocodeService: geocodeService,
		wsHub:          wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(metricsMiddleware())

	// API 路由
	api := r.Group("/api")
	{
		// 车辆与行程视图
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin/trips", h.ListTrips)
		api.GET("/vehicles/:vin/countries", h.ListCountries)
		api.GET("/vehicles/:vin/daily_summary", h.DailySummary)

		// 视图状态
		api.GET("/vehicles/:vin/view-state", h.GetViewState)
		api.PUT("/vehicles/:vin/view-state", h.UpdateViewState)
		api.DELETE("/vehicles/:vin/view-state/filters", h.ClearFilters)
		api.PUT("/vehicles/:vin/spatial-filter", h.SetSpatialFilter)
		api.GET("/view-state/columns", h.GetColumns)
		api.PUT("/view-state/columns", h.UpdateColumns)

		// 轨迹
		api.GET("/trips/:id/route", h.GetTripRoute)

		// 逆地理编码
		api.GET("/geocode_status", h.GeocodeStatus)
		api.POST("/backfill_geocoding", h.BackfillGeocoding)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	// Prometheus
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	if vin := c.Query("vin"); vin != "" {
		client.Subscribe(vin)
	}
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	clients := 0
	if h.wsHub != nil {
		clients = h.wsHub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": clients,
	})
}

// respondError 按错误类型返回状态码，未识别的错误记录日志并返回 500
func (h *Handler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, state.ErrStaleView):
		c.JSON(http.StatusConflict, gin.H{"error": "View superseded by a newer request"})
	case errors.Is(err, tripview.ErrInvalidConfig), errors.Is(err, errBadQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": message + ": not found"})
	default:
		h.logger.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// metricsMiddleware 记录请求数与耗时，按路由模板聚合
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
