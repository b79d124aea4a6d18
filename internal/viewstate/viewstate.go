// Package viewstate 视图设置的持久化：排序、图表、空间过滤按车辆保存，列设置全局保存
package viewstate

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/metrics"
	"github.com/langchou/tripgazer/internal/spatial"
	"github.com/langchou/tripgazer/internal/tripview"
	"github.com/langchou/tripgazer/internal/units"
)

const (
	columnsKey       = "viewstate:columns"
	vehicleKeyPrefix = "viewstate:vehicle:"
)

// VehicleKey 车辆视图状态的存储键
func VehicleKey(vin string) string {
	return vehicleKeyPrefix + vin
}

// ViewState 单车视图状态
type ViewState struct {
	SortKey       string                `json:"sort_key"`
	SortDirection tripview.Direction    `json:"sort_direction"`
	UnitSystem    units.System          `json:"unit_system"`
	Country       string                `json:"country"`
	Period        string                `json:"period"`
	Chart         tripview.ChartRequest `json:"chart"`
	Spatial       spatial.Filter        `json:"spatial"`
}

// Default 默认视图状态
func Default() ViewState {
	cfg := tripview.DefaultConfig()
	return ViewState{
		SortKey:       cfg.SortKey,
		SortDirection: cfg.SortDirection,
		UnitSystem:    cfg.UnitSystem,
		Country:       cfg.Country,
		Period:        cfg.Period.Label,
	}
}

// Validate 校验时间范围与枚举字段
func (s ViewState) Validate(now time.Time) error {
	if _, err := tripview.ParsePeriod(s.Period, now); err != nil {
		return err
	}
	return s.Config(now).Validate()
}

// Config 转换为视图配置，无法解析的时间范围按全部处理
func (s ViewState) Config(now time.Time) tripview.Config {
	period, err := tripview.ParsePeriod(s.Period, now)
	if err != nil {
		period = tripview.Period{Label: "all"}
	}
	return tripview.Config{
		SortKey:       s.SortKey,
		SortDirection: s.SortDirection,
		UnitSystem:    s.UnitSystem,
		Spatial:       s.Spatial,
		Country:       s.Country,
		Period:        period,
		Chart:         s.Chart,
	}
}

// Patch 局部更新，nil 字段保持不变
type Patch struct {
	SortKey       *string             `json:"sort_key,omitempty"`
	SortDirection *tripview.Direction `json:"sort_direction,omitempty"`
	UnitSystem    *units.System       `json:"unit_system,omitempty"`
	Country       *string             `json:"country,omitempty"`
	Period        *string             `json:"period,omitempty"`
	ChartMode     *tripview.ChartMode `json:"chart_mode,omitempty"`
	ChartMetric   *string             `json:"chart_metric,omitempty"`
	SecondMetric  *string             `json:"second_metric,omitempty"`
	Spatial       *spatial.Filter     `json:"spatial,omitempty"`
}

// Apply 合并到状态上。直方图模式与第二指标互斥，后设置的一方清除另一方
func (p Patch) Apply(s ViewState) ViewState {
	if p.SortKey != nil {
		s.SortKey = *p.SortKey
	}
	if p.SortDirection != nil {
		s.SortDirection = *p.SortDirection
	}
	if p.UnitSystem != nil {
		s.UnitSystem = *p.UnitSystem
	}
	if p.Country != nil {
		s.Country = *p.Country
	}
	if p.Period != nil {
		s.Period = *p.Period
	}
	if p.ChartMetric != nil {
		s.Chart.Metric = *p.ChartMetric
	}
	if p.ChartMode != nil {
		s.Chart.Mode = *p.ChartMode
		if s.Chart.Mode == tripview.ChartHistogram {
			s.Chart.SecondMetric = ""
		}
	}
	if p.SecondMetric != nil {
		s.Chart.SecondMetric = *p.SecondMetric
		if s.Chart.SecondMetric != "" && s.Chart.Mode == tripview.ChartHistogram {
			s.Chart.Mode = tripview.ChartLine
		}
	}
	if p.Spatial != nil {
		s.Spatial = *p.Spatial
	}
	return s
}

// Manager 视图状态读写，最后写入者生效
type Manager struct {
	store    Store
	logger   *zap.Logger
	defaults ViewState
}

// Option 管理器选项
type Option func(*Manager)

// WithUnitSystem 未保存状态的车辆使用的单位制
func WithUnitSystem(system units.System) Option {
	return func(m *Manager) {
		if system != "" {
			m.defaults.UnitSystem = system
		}
	}
}

// NewManager 创建管理器
func NewManager(store Store, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{store: store, logger: logger, defaults: Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Defaults 未保存状态时的视图状态
func (m *Manager) Defaults() ViewState {
	return m.defaults
}

// Load 读取车辆视图状态。不存在时返回默认值，内容损坏时删除该键并返回默认值
func (m *Manager) Load(ctx context.Context, vin string) ViewState {
	key := VehicleKey(vin)
	state := m.defaults
	if !m.read(ctx, key, &state) {
		return m.defaults
	}
	if err := state.Validate(time.Now()); err != nil {
		m.discard(ctx, key, err)
		return m.defaults
	}
	return state
}

// Save 合并并保存车辆视图状态
func (m *Manager) Save(ctx context.Context, vin string, patch Patch) (ViewState, error) {
	state := patch.Apply(m.Load(ctx, vin))
	return state, m.Put(ctx, vin, state)
}

// Put 整体覆盖车辆视图状态
func (m *Manager) Put(ctx context.Context, vin string, state ViewState) error {
	return m.write(ctx, VehicleKey(vin), state)
}

// ClearFilters 清除空间过滤，其他设置不变
func (m *Manager) ClearFilters(ctx context.Context, vin string) (ViewState, error) {
	none := spatial.None()
	return m.Save(ctx, vin, Patch{Spatial: &none})
}

// LoadColumns 读取全局列设置并与默认列合并
func (m *Manager) LoadColumns(ctx context.Context) ColumnState {
	var cols ColumnState
	if !m.read(ctx, columnsKey, &cols) {
		cols = ColumnState{}
	}
	return cols.Normalize(tripview.DefaultColumns())
}

// SaveColumns 保存全局列设置
func (m *Manager) SaveColumns(ctx context.Context, cols ColumnState) (ColumnState, error) {
	cols = cols.Normalize(tripview.DefaultColumns())
	if err := m.write(ctx, columnsKey, cols); err != nil {
		return cols, err
	}
	return cols, nil
}

func (m *Manager) read(ctx context.Context, key string, v any) bool {
	raw, ok, err := m.store.GetItem(ctx, key)
	if err != nil {
		m.logger.Warn("Failed to read view state", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		m.discard(ctx, key, err)
		return false
	}
	return true
}

// discard 删除无法使用的已保存状态，避免之后每次读取都失败
func (m *Manager) discard(ctx context.Context, key string, cause error) {
	m.logger.Warn("Discarding corrupt view state", zap.String("key", key), zap.Error(cause))
	metrics.RecordCorruptViewState()
	if err := m.store.RemoveItem(ctx, key); err != nil {
		m.logger.Warn("Failed to remove corrupt view state", zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal view state: %w", err)
	}
	if err := m.store.SetItem(ctx, key, string(data)); err != nil {
		return fmt.Errorf("save view state: %w", err)
	}
	return nil
}
