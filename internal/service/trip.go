package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/metrics"
	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/state"
	"github.com/langchou/tripgazer/internal/tripview"
	"github.com/langchou/tripgazer/internal/viewstate"
	"github.com/langchou/tripgazer/pkg/ws"
)

const (
	// defaultSummaryDays 未限定时间范围时折线图的天数
	defaultSummaryDays = 30
	// maxSummaryDays 折线图最多覆盖的天数
	maxSummaryDays = 366
)

// TripSource 行程数据来源
type TripSource interface {
	ListByVIN(ctx context.Context, vin string, since *time.Time) ([]*models.Trip, error)
	DailySummary(ctx context.Context, vin string, days int) ([]*models.PeriodBucket, error)
}

// VehicleSource 车辆数据来源
type VehicleSource interface {
	List(ctx context.Context) ([]*models.Vehicle, error)
}

// Broadcaster 推送视图更新
type Broadcaster interface {
	BroadcastMessage(msgType string, data any)
	BroadcastToVehicle(vin, msgType string, data any)
}

// ViewUpdate 推送给订阅者的视图摘要
type ViewUpdate struct {
	Status   tripview.Status     `json:"status"`
	Message  string              `json:"message,omitempty"`
	RowCount int                 `json:"row_count"`
	Totals   *tripview.Totals    `json:"totals,omitempty"`
	State    viewstate.ViewState `json:"state"`
}

// VehicleSummary 车辆及其全部行程的汇总
type VehicleSummary struct {
	Vehicle *models.Vehicle  `json:"vehicle"`
	Totals  *tripview.Totals `json:"totals"`
}

// TripService 行程视图服务：读取行程、计算视图、保存视图状态并推送
type TripService struct {
	logger     *zap.Logger
	trips      TripSource
	vehicles   VehicleSource
	views      *viewstate.Manager
	controller *tripview.Controller
	sessions   *state.Manager
	hub        Broadcaster
	now        func() time.Time
}

// NewTripService 创建行程视图服务
func NewTripService(
	logger *zap.Logger,
	trips TripSource,
	vehicles VehicleSource,
	views *viewstate.Manager,
	hub Broadcaster,
) *TripService {
	svc := &TripService{
		logger:     logger,
		trips:      trips,
		vehicles:   vehicles,
		views:      views,
		controller: tripview.NewController(logger),
		hub:        hub,
		now:        time.Now,
	}
	svc.sessions = state.NewManager(svc.onSessionChange)
	return svc
}

// onSessionChange 会话状态变化推送给订阅者
func (s *TripService) onSessionChange(vin, from, to string) {
	s.logger.Debug("View session state changed",
		zap.String("vin", vin),
		zap.String("from", from),
		zap.String("to", to))
	if s.hub != nil {
		s.hub.BroadcastToVehicle(vin, ws.MsgTypeSessionState, map[string]string{"from": from, "to": to})
	}
}

// Sessions 视图会话管理器
func (s *TripService) Sessions() *state.Manager {
	return s.sessions
}

// LoadState 读取车辆视图状态
func (s *TripService) LoadState(ctx context.Context, vin string) viewstate.ViewState {
	return s.views.Load(ctx, vin)
}

// View 按请求覆盖的设置计算车辆行程视图，并保存为新的视图状态。
// 被更新请求取代的计算返回 state.ErrStaleView
func (s *TripService) View(ctx context.Context, vin string, patch viewstate.Patch) (*tripview.Result, error) {
	start := s.now()
	vs := patch.Apply(s.LoadState(ctx, vin))
	if err := vs.Validate(start); err != nil {
		return nil, err
	}
	cfg := vs.Config(start)

	session := s.sessions.GetOrCreate(vin)
	ticket := session.Begin()

	trips, err := s.trips.ListByVIN(ctx, vin, cfg.Period.From)
	if err != nil {
		session.Fail(ticket)
		return nil, fmt.Errorf("load trips: %w", err)
	}

	var buckets []*models.PeriodBucket
	if cfg.Chart.Mode == tripview.ChartLine {
		buckets, err = s.trips.DailySummary(ctx, vin, summaryDays(cfg.Period, start))
		if err != nil {
			session.Fail(ticket)
			return nil, fmt.Errorf("load daily summary: %w", err)
		}
	}

	result, err := s.controller.ApplyView(trips, buckets, cfg)
	if err != nil {
		session.Fail(ticket)
		return nil, err
	}

	if err := session.Accept(ticket, result.Status == tripview.StatusNoMatch); err != nil {
		if errors.Is(err, state.ErrStaleView) {
			metrics.RecordStaleView()
			s.logger.Debug("Discarding superseded view result", zap.String("vin", vin), zap.Uint64("generation", ticket.Generation))
		}
		return nil, err
	}
	metrics.RecordView(string(result.Status), time.Since(start), result.Skipped)

	if err := s.views.Put(ctx, vin, vs); err != nil {
		s.logger.Warn("Failed to persist view state", zap.String("vin", vin), zap.Error(err))
	}

	if s.hub != nil {
		s.hub.BroadcastToVehicle(vin, ws.MsgTypeViewUpdate, ViewUpdate{
			Status:   result.Status,
			Message:  result.Message,
			RowCount: len(result.Rows),
			Totals:   result.Totals,
			State:    vs,
		})
	}
	return result, nil
}

// SaveState 局部更新车辆视图状态
func (s *TripService) SaveState(ctx context.Context, vin string, patch viewstate.Patch) (viewstate.ViewState, error) {
	vs := patch.Apply(s.LoadState(ctx, vin))
	if err := vs.Validate(s.now()); err != nil {
		return vs, err
	}
	if err := s.views.Put(ctx, vin, vs); err != nil {
		return vs, err
	}
	return vs, nil
}

// ClearFilters 清除车辆的空间过滤
func (s *TripService) ClearFilters(ctx context.Context, vin string) (viewstate.ViewState, error) {
	return s.views.ClearFilters(ctx, vin)
}

// Columns 全局列设置
func (s *TripService) Columns(ctx context.Context) viewstate.ColumnState {
	return s.views.LoadColumns(ctx)
}

// SaveColumns 保存全局列设置
func (s *TripService) SaveColumns(ctx context.Context, cols viewstate.ColumnState) (viewstate.ColumnState, error) {
	return s.views.SaveColumns(ctx, cols)
}

// VehicleSummaries 所有车辆及其行程汇总，使用各车辆保存的单位制
func (s *TripService) VehicleSummaries(ctx context.Context) ([]VehicleSummary, error) {
	vehicles, err := s.vehicles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	out := make([]VehicleSummary, 0, len(vehicles))
	for _, v := range vehicles {
		trips, err := s.trips.ListByVIN(ctx, v.VIN, nil)
		if err != nil {
			return nil, fmt.Errorf("load trips for %s: %w", v.VIN, err)
		}
		vs := s.LoadState(ctx, v.VIN)
		out = append(out, VehicleSummary{
			Vehicle: v,
			Totals:  tripview.Summarize(trips, vs.UnitSystem),
		})
	}
	return out, nil
}

// summaryDays 折线图覆盖的天数
func summaryDays(p tripview.Period, now time.Time) int {
	if p.From == nil {
		return defaultSummaryDays
	}
	days := int(now.Sub(*p.From).Hours() / 24)
	if days < 1 {
		days = 1
	}
	if days > maxSummaryDays {
		days = maxSummaryDays
	}
	return days
}
