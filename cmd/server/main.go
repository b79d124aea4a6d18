package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/tripgazer/internal/api/geocoder"
	"github.com/langchou/tripgazer/internal/api/handlers"
	"github.com/langchou/tripgazer/internal/config"
	"github.com/langchou/tripgazer/internal/repository"
	"github.com/langchou/tripgazer/internal/service"
	"github.com/langchou/tripgazer/internal/units"
	"github.com/langchou/tripgazer/internal/viewstate"
	"github.com/langchou/tripgazer/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Tripgazer", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	vehicleRepo := repository.NewVehicleRepository(db)
	tripRepo := repository.NewTripRepository(db)
	routeRepo := repository.NewRouteRepository(db)

	// 视图状态存储
	store, closeStore, err := openViewStore(cfg, db)
	if err != nil {
		logger.Fatal("Failed to open view state store", zap.Error(err))
	}
	defer closeStore()
	logger.Info("View state store ready", zap.String("backend", cfg.ViewStateBackend))

	views := viewstate.NewManager(store, logger, viewstate.WithUnitSystem(units.System(cfg.UnitSystem)))

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 创建服务
	tripService := service.NewTripService(logger, tripRepo, vehicleRepo, views, wsHub)

	geocodeClient := geocoder.NewClient(cfg.AmapAPIKey, logger)
	logger.Info("Geocoder configured", zap.String("provider", geocodeClient.GetProvider()))
	geocodeService := service.NewGeocodeService(logger, tripRepo, geocodeClient, wsHub, service.GeocodeOptions{
		Enabled:        cfg.GeocodeEnabled,
		Interval:       cfg.GeocodeInterval,
		BatchSize:      cfg.GeocodeBatchSize,
		StatusInterval: cfg.GeocodeStatusInterval,
	})
	geocodeService.Start(ctx)

	// 新连接的初始数据：车辆列表与编码进度
	wsHub.SetInitDataProvider(func() *ws.InitData {
		initCtx, initCancel := context.WithTimeout(ctx, 5*time.Second)
		defer initCancel()

		data := &ws.InitData{}
		if vehicles, err := tripService.VehicleSummaries(initCtx); err == nil {
			data.Vehicles = vehicles
		} else {
			logger.Warn("Failed to load vehicles for init data", zap.Error(err))
		}
		if status, err := geocodeService.Status(initCtx); err == nil {
			data.GeocodeStatus = status
		}
		return data
	})

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		tripRepo,
		routeRepo,
		tripService,
		geocodeService,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止服务
	geocodeService.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("Server exited")
}

// openViewStore 按配置选择视图状态存储后端
func openViewStore(cfg *config.Config, db *repository.DB) (viewstate.Store, func(), error) {
	switch cfg.ViewStateBackend {
	case config.BackendBadger:
		store, err := viewstate.OpenBadgerStore(cfg.ViewStateDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendMemory:
		return viewstate.NewMemoryStore(), func() {}, nil
	default:
		return repository.NewSettingsRepository(db), func() {}, nil
	}
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
