package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/api/geocoder"
	"github.com/langchou/tripgazer/internal/metrics"
	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/pkg/ws"
)

// UnknownAddress 逆地理编码失败时的地址
const UnknownAddress = "Unknown"

// GeocodeStore 待编码行程的存取
type GeocodeStore interface {
	ListPendingGeocode(ctx context.Context, limit int) ([]*models.Trip, error)
	UpdateAddresses(ctx context.Context, id int64, startAddress, endAddress string, countries []string) error
	GeocodeStatus(ctx context.Context) (*models.GeocodeStatus, error)
}

// ReverseGeocoder 逆地理编码
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*geocoder.Address, error)
}

// GeocodeOptions 回填参数
type GeocodeOptions struct {
	Enabled        bool
	Interval       time.Duration
	BatchSize      int
	StatusInterval time.Duration
}

// GeocodeService 行程地址回填：把 Geocoding... 占位替换为地址，并记录途经国家
type GeocodeService struct {
	logger   *zap.Logger
	store    GeocodeStore
	geocoder ReverseGeocoder
	hub      Broadcaster
	opts     GeocodeOptions

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewGeocodeService 创建回填服务
func NewGeocodeService(logger *zap.Logger, store GeocodeStore, gc ReverseGeocoder, hub Broadcaster, opts GeocodeOptions) *GeocodeService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 30 * time.Second
	}
	return &GeocodeService{
		logger:   logger,
		store:    store,
		geocoder: gc,
		hub:      hub,
		opts:     opts,
		trigger:  make(chan struct{}, 1),
	}
}

// Start 启动回填循环
func (s *GeocodeService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting geocode backfill",
		zap.Bool("enabled", s.opts.Enabled),
		zap.Duration("interval", s.opts.Interval))

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop 停止回填循环
func (s *GeocodeService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Geocode backfill stopped")
}

// Trigger 请求立即执行一轮回填，已有待执行请求时忽略
func (s *GeocodeService) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *GeocodeService) loop(ctx context.Context) {
	defer s.wg.Done()

	s.runAndReport(ctx)

	backfill := time.NewTicker(s.opts.Interval)
	defer backfill.Stop()
	status := time.NewTicker(s.opts.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-backfill.C:
			s.runAndReport(ctx)
		case <-s.trigger:
			s.runAndReport(ctx)
		case <-status.C:
			s.publishStatus(ctx)
		}
	}
}

func (s *GeocodeService) runAndReport(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Geocode backfill failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Geocode backfill finished", zap.Int("trips", n))
	}
}

// RunOnce 处理一批待编码行程，返回处理的行程数
func (s *GeocodeService) RunOnce(ctx context.Context) (int, error) {
	trips, err := s.store.ListPendingGeocode(ctx, s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending trips: %w", err)
	}

	processed := 0
	for _, t := range trips {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		startAddr, endAddr, countries := s.resolve(ctx, t)
		if err := s.store.UpdateAddresses(ctx, t.ID, startAddr, endAddr, countries); err != nil {
			s.logger.Error("Failed to save trip addresses", zap.Int64("trip_id", t.ID), zap.Error(err))
			continue
		}
		processed++
		s.publishStatus(ctx)
	}
	return processed, nil
}

// resolve 计算起止地址与途经国家。关闭编码时以坐标作为地址，请求失败的端点保持待编码
func (s *GeocodeService) resolve(ctx context.Context, t *models.Trip) (string, string, []string) {
	if !s.opts.Enabled {
		return coordinates(t.StartLatitude, t.StartLongitude), coordinates(t.EndLatitude, t.EndLongitude), nil
	}

	var countries []string
	addCountry := func(c string) {
		if c == "" {
			return
		}
		for _, existing := range countries {
			if existing == c {
				return
			}
		}
		countries = append(countries, c)
	}

	lookup := func(lat, lon *float64) string {
		if lat == nil || lon == nil {
			return UnknownAddress
		}
		addr, err := s.geocoder.ReverseGeocode(ctx, *lat, *lon)
		metrics.RecordGeocode(err == nil && addr != nil)
		if err != nil {
			// 请求失败保留占位，下一轮重试
			s.logger.Warn("Failed to geocode trip endpoint",
				zap.Int64("trip_id", t.ID),
				zap.Float64("lat", *lat),
				zap.Float64("lon", *lon),
				zap.Error(err))
			return models.GeocodingPending
		}
		if addr == nil {
			return UnknownAddress
		}
		addCountry(addr.Country)
		if addr.FormattedAddress == "" {
			return UnknownAddress
		}
		return addr.FormattedAddress
	}

	start := lookup(t.StartLatitude, t.StartLongitude)
	end := lookup(t.EndLatitude, t.EndLongitude)
	return start, end, countries
}

// Status 编码进度
func (s *GeocodeService) Status(ctx context.Context) (*models.GeocodeStatus, error) {
	status, err := s.store.GeocodeStatus(ctx)
	if err != nil {
		return nil, err
	}
	metrics.GeocodePending.Set(float64(status.Pending))
	return status, nil
}

func (s *GeocodeService) publishStatus(ctx context.Context) {
	status, err := s.Status(ctx)
	if err != nil {
		s.logger.Warn("Failed to read geocode status", zap.Error(err))
		return
	}
	if s.hub != nil {
		s.hub.BroadcastMessage(ws.MsgTypeGeocodeStatus, status)
	}
}

func coordinates(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return UnknownAddress
	}
	return fmt.Sprintf("%v, %v", *lat, *lon)
}
