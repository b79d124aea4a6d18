package tripview

import (
	"math"

	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/units"
)

// Descriptor 指标描述：标签、单位换算与颜色。Kind 为 nil 表示与单位制无关
type Descriptor struct {
	Key      string
	Label    string
	Kind     *units.Kind
	Color    string
	Decimals int

	value  func(t *models.Trip) *float64
	bucket func(b *models.PeriodBucket) *float64
}

// Unit 指定单位制下的单位标签
func (d Descriptor) Unit(system units.System) string {
	if d.Kind == nil {
		return ""
	}
	return units.Label(*d.Kind, system)
}

// Convert 换算为显示值，无法换算时返回 nil
func (d Descriptor) Convert(v *float64, system units.System) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	if d.Kind != nil {
		out = units.Convert(*v, *d.Kind, system)
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil
	}
	return &out
}

// Value 行程的公制标准值
func (d Descriptor) Value(t *models.Trip) *float64 {
	return d.value(t)
}

// BucketValue 聚合桶中的值，不支持按天聚合的指标返回 false
func (d Descriptor) BucketValue(b *models.PeriodBucket) (*float64, bool) {
	if d.bucket == nil {
		return nil, false
	}
	return d.bucket(b), true
}

// Format 格式化显示值
func (d Descriptor) Format(v *float64) string {
	if v == nil {
		return units.NotAvailable
	}
	return units.Format(*v, d.Decimals)
}

func kind(k units.Kind) *units.Kind { return &k }

var descriptorTable = []Descriptor{
	{
		Key: "distance_km", Label: "Distance", Kind: kind(units.Distance), Color: "#36a2eb", Decimals: 1,
		value:  func(t *models.Trip) *float64 { return t.DistanceKm },
		bucket: func(b *models.PeriodBucket) *float64 { return b.DistanceKm },
	},
	{
		Key: "fuel_consumption_l_100km", Label: "Fuel Consumption", Kind: kind(units.Consumption), Color: "#ff6384", Decimals: 2,
		value:  func(t *models.Trip) *float64 { return t.FuelConsumptionL100Km },
		bucket: func(b *models.PeriodBucket) *float64 { return b.FuelConsumptionL100Km },
	},
	{
		Key: "duration_seconds", Label: "Duration", Kind: kind(units.Duration), Color: "#9966ff", Decimals: 0,
		value:  func(t *models.Trip) *float64 { return t.DurationSeconds },
		bucket: func(b *models.PeriodBucket) *float64 { return b.DurationSeconds },
	},
	{
		Key: "average_speed_kmh", Label: "Average Speed", Kind: kind(units.Speed), Color: "#ff9f40", Decimals: 1,
		value:  func(t *models.Trip) *float64 { return t.AverageSpeedKmh },
		bucket: func(b *models.PeriodBucket) *float64 { return b.AverageSpeedKmh },
	},
	{
		Key: "max_speed_kmh", Label: "Max Speed", Kind: kind(units.Speed), Color: "#c9cbcf", Decimals: 0,
		value: func(t *models.Trip) *float64 { return t.MaxSpeedKmh },
	},
	{
		Key: "ev_distance_km", Label: "EV Distance", Kind: kind(units.Distance), Color: "#4bc0c0", Decimals: 1,
		value:  func(t *models.Trip) *float64 { return t.EVDistanceKm },
		bucket: func(b *models.PeriodBucket) *float64 { return b.EVDistanceKm },
	},
	{
		Key: "ev_duration_seconds", Label: "EV Duration", Kind: kind(units.Duration), Color: "#2e8b57", Decimals: 0,
		value:  func(t *models.Trip) *float64 { return t.EVDurationSeconds },
		bucket: func(b *models.PeriodBucket) *float64 { return b.EVDurationSeconds },
	},
	{
		Key: "score_global", Label: "Score", Color: "#ffcd56", Decimals: 0,
		value:  func(t *models.Trip) *float64 { return t.ScoreGlobal },
		bucket: func(b *models.PeriodBucket) *float64 { return b.ScoreGlobal },
	},
	{
		Key: "score_acceleration", Label: "Acceleration Score", Color: "#e67e22", Decimals: 0,
		value: func(t *models.Trip) *float64 { return t.ScoreAcceleration },
	},
	{
		Key: "score_braking", Label: "Braking Score", Color: "#8e44ad", Decimals: 0,
		value: func(t *models.Trip) *float64 { return t.ScoreBraking },
	},
	{
		Key: "score_advice", Label: "Advice Score", Color: "#16a085", Decimals: 0,
		value: func(t *models.Trip) *float64 { return t.ScoreAdvice },
	},
	{
		Key: "score_constant_speed", Label: "Constant Speed Score", Color: "#2c3e50", Decimals: 0,
		value: func(t *models.Trip) *float64 { return t.ScoreConstantSpeed },
	},
}

var descriptorIndex = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(descriptorTable))
	for _, d := range descriptorTable {
		m[d.Key] = d
	}
	return m
}()

// Lookup 按字段名查找指标描述
func Lookup(key string) (Descriptor, bool) {
	d, ok := descriptorIndex[key]
	return d, ok
}

// Descriptors 全部指标，按表格默认列顺序
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptorTable))
	copy(out, descriptorTable)
	return out
}

// 非指标列
const (
	ColumnStartTime    = "start_timestamp"
	ColumnStartAddress = "start_address"
	ColumnEndAddress   = "end_address"
)

// DefaultColumns 表格默认列顺序
func DefaultColumns() []string {
	cols := []string{ColumnStartTime, ColumnStartAddress, ColumnEndAddress}
	for _, d := range descriptorTable {
		cols = append(cols, d.Key)
	}
	return cols
}
