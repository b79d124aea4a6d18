// Package tripview 行程浏览视图：过滤、单位换算、排序与图表数据
package tripview

import (
	"sort"

	"go.uber.org/zap"

	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/spatial"
	"github.com/langchou/tripgazer/internal/stats"
	"github.com/langchou/tripgazer/internal/units"
)

// Status 视图结果状态
type Status string

const (
	StatusOK      Status = "ok"
	StatusNoMatch Status = "no_match"
)

// NoMatchMessage 过滤后无结果
const NoMatchMessage = "no trips match current filters"

// Column 表格列
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
}

// Row 表格行：保留原始行程，Values 为显示单位下的值
type Row struct {
	Trip    *models.Trip        `json:"trip"`
	Values  map[string]*float64 `json:"values"`
	Display map[string]string   `json:"display"`
}

// Result 视图计算结果
type Result struct {
	Status     Status       `json:"status"`
	Message    string       `json:"message,omitempty"`
	UnitSystem units.System `json:"unit_system"`
	Config     Config       `json:"config"`
	Columns    []Column     `json:"columns"`
	Rows       []Row        `json:"rows"`
	Totals     *Totals      `json:"totals,omitempty"`
	Chart      *Chart       `json:"chart,omitempty"`
	Skipped    int          `json:"skipped"`
}

// Controller 视图控制器，无内部可变状态
type Controller struct {
	logger *zap.Logger
	rule   stats.BinRule
}

// NewController 创建控制器
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		logger: logger,
		rule:   stats.Sturges,
	}
}

// ApplyView 按固定顺序计算视图：时间/国家过滤 -> 空间过滤 -> 空结果短路 -> 单位换算 -> 排序 -> 图表
func (c *Controller) ApplyView(trips []*models.Trip, buckets []*models.PeriodBucket, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Normalize()

	result := &Result{
		Status:     StatusOK,
		UnitSystem: cfg.UnitSystem,
		Config:     cfg,
		Columns:    columns(cfg.UnitSystem),
		Rows:       []Row{},
	}

	filtered := make([]*models.Trip, 0, len(trips))
	for _, t := range trips {
		if t == nil || t.ID <= 0 {
			result.Skipped++
			c.logger.Warn("Skipping malformed trip record without identifier")
			continue
		}
		if !inPeriod(t, cfg.Period) || !inCountry(t, cfg.Country) {
			continue
		}
		filtered = append(filtered, t)
	}

	if cfg.Spatial.IsActive() {
		kept := filtered[:0:0]
		for _, t := range filtered {
			start := spatial.NewPoint(t.StartLatitude, t.StartLongitude)
			end := spatial.NewPoint(t.EndLatitude, t.EndLongitude)
			if cfg.Spatial.Matches(start, end) {
				kept = append(kept, t)
			}
		}
		filtered = kept
	}

	if len(filtered) == 0 {
		result.Status = StatusNoMatch
		result.Message = NoMatchMessage
		return result, nil
	}

	rows := make([]Row, len(filtered))
	for i, t := range filtered {
		rows[i] = convertRow(t, cfg.UnitSystem)
	}
	sortRows(rows, cfg.SortKey, cfg.SortDirection)
	result.Rows = rows
	result.Totals = computeTotals(filtered, cfg.UnitSystem)

	switch cfg.Chart.Mode {
	case ChartHistogram:
		result.Chart = c.histogramChart(rows, cfg)
	case ChartLine:
		result.Chart = lineChart(buckets, cfg)
	}

	return result, nil
}

func inPeriod(t *models.Trip, p Period) bool {
	if p.From == nil {
		return true
	}
	return !t.StartTime.Before(*p.From)
}

func inCountry(t *models.Trip, country string) bool {
	if country == "" || country == CountryAll {
		return true
	}
	return t.HasCountry(country)
}

func columns(system units.System) []Column {
	cols := []Column{
		{Key: ColumnStartTime, Label: "Start"},
		{Key: ColumnStartAddress, Label: "From"},
		{Key: ColumnEndAddress, Label: "To"},
	}
	for _, d := range descriptorTable {
		cols = append(cols, Column{Key: d.Key, Label: d.Label, Unit: d.Unit(system)})
	}
	return cols
}

func convertRow(t *models.Trip, system units.System) Row {
	row := Row{
		Trip:    t,
		Values:  make(map[string]*float64, len(descriptorTable)),
		Display: make(map[string]string, len(descriptorTable)),
	}
	for _, d := range descriptorTable {
		v := d.Convert(d.Value(t), system)
		row.Values[d.Key] = v
		row.Display[d.Key] = d.Format(v)
	}
	return row
}

// sortRows 稳定排序；缺失值无论升降序都排在最后
func sortRows(rows []Row, key string, dir Direction) {
	desc := dir == Desc

	if key == ColumnStartTime {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].Trip.StartTime, rows[j].Trip.StartTime
			if desc {
				return a.After(b)
			}
			return a.Before(b)
		})
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Values[key], rows[j].Values[key]
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case desc:
			return *a > *b
		default:
			return *a < *b
		}
	})
}

func (c *Controller) histogramChart(rows []Row, cfg Config) *Chart {
	d, ok := Lookup(cfg.Chart.Metric)
	if !ok {
		c.logger.Debug("Chart metric not found, treating as no metric selected",
			zap.String("metric", cfg.Chart.Metric))
		return nil
	}

	values := make([]*float64, len(rows))
	for i, r := range rows {
		values[i] = r.Values[d.Key]
	}

	dist := stats.BuildDistribution(stats.Observations(values), c.rule)
	return &Chart{
		Mode: ChartHistogram,
		Histogram: &HistogramChart{
			Metric:       d.Key,
			Label:        d.Label,
			Unit:         d.Unit(cfg.UnitSystem),
			Color:        d.Color,
			Distribution: dist,
		},
	}
}
