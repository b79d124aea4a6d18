package tripview

import (
	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/stats"
	"github.com/langchou/tripgazer/internal/units"
)

// 折线图坐标轴
const (
	AxisPrimary   = "y"
	AxisSecondary = "y1"
)

// Chart 图表数据，Mode 决定 Histogram 与 Line 哪个有值
type Chart struct {
	Mode      ChartMode       `json:"mode"`
	Histogram *HistogramChart `json:"histogram,omitempty"`
	Line      *LineChart      `json:"line,omitempty"`
}

// HistogramChart 单指标分布
type HistogramChart struct {
	Metric       string             `json:"metric"`
	Label        string             `json:"label"`
	Unit         string             `json:"unit"`
	Color        string             `json:"color"`
	Distribution stats.Distribution `json:"distribution"`
}

// Series 折线图的一条序列，nil 点为断点
type Series struct {
	Metric string     `json:"metric"`
	Label  string     `json:"label"`
	Unit   string     `json:"unit"`
	Color  string     `json:"color"`
	Axis   string     `json:"axis"`
	Points []*float64 `json:"points"`
}

// LineChart 按天聚合的折线图
type LineChart struct {
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

func lineChart(buckets []*models.PeriodBucket, cfg Config) *Chart {
	labels := make([]string, 0, len(buckets))
	for _, b := range buckets {
		if b == nil {
			continue
		}
		labels = append(labels, b.Date)
	}

	line := &LineChart{Labels: labels, Series: []Series{}}
	axis := AxisPrimary
	for _, key := range []string{cfg.Chart.Metric, cfg.Chart.SecondMetric} {
		s, ok := series(buckets, key, axis, cfg.UnitSystem)
		if !ok {
			continue
		}
		line.Series = append(line.Series, s)
		axis = AxisSecondary
	}

	if len(line.Series) == 0 {
		return nil
	}
	return &Chart{Mode: ChartLine, Line: line}
}

func series(buckets []*models.PeriodBucket, key, axis string, system units.System) (Series, bool) {
	d, ok := Lookup(key)
	if !ok {
		return Series{}, false
	}
	if _, ok := d.BucketValue(&models.PeriodBucket{}); !ok {
		return Series{}, false
	}

	points := make([]*float64, 0, len(buckets))
	for _, b := range buckets {
		if b == nil {
			continue
		}
		v, _ := d.BucketValue(b)
		points = append(points, d.Convert(v, system))
	}

	return Series{
		Metric: d.Key,
		Label:  d.Label,
		Unit:   d.Unit(system),
		Color:  d.Color,
		Axis:   axis,
		Points: points,
	}, true
}
