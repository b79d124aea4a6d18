package tripview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/langchou/tripgazer/internal/spatial"
	"github.com/langchou/tripgazer/internal/units"
)

// Direction 排序方向
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ChartMode 图表模式
type ChartMode string

const (
	ChartNone      ChartMode = ""
	ChartHistogram ChartMode = "histogram"
	ChartLine      ChartMode = "line"
)

// CountryAll 国家过滤哨兵值
const CountryAll = "all"

// DefaultSortKey 默认按开始时间倒序
const DefaultSortKey = ColumnStartTime

// ErrInvalidConfig 视图配置非法
var ErrInvalidConfig = errors.New("invalid view config")

// ChartRequest 图表请求。直方图模式只用 Metric，折线图最多两个指标
type ChartRequest struct {
	Mode         ChartMode `json:"mode" validate:"omitempty,oneof=histogram line"`
	Metric       string    `json:"metric"`
	SecondMetric string    `json:"second_metric"`
}

// Period 时间范围，From 为 nil 表示全部
type Period struct {
	Label string     `json:"label"`
	From  *time.Time `json:"from,omitempty"`
}

// Config 视图配置
type Config struct {
	SortKey       string         `json:"sort_key"`
	SortDirection Direction      `json:"sort_direction" validate:"omitempty,oneof=asc desc"`
	UnitSystem    units.System   `json:"unit_system" validate:"omitempty,oneof=metric imperial_us imperial_uk"`
	Spatial       spatial.Filter `json:"spatial"`
	Country       string         `json:"country"`
	Period        Period         `json:"period"`
	Chart         ChartRequest   `json:"chart"`
}

var validate = validator.New()

// DefaultConfig 默认配置：开始时间倒序、公制、不过滤
func DefaultConfig() Config {
	return Config{
		SortKey:       DefaultSortKey,
		SortDirection: Desc,
		UnitSystem:    units.Metric,
		Country:       CountryAll,
		Period:        Period{Label: "all"},
	}
}

// Validate 校验枚举字段
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Normalize 补全默认值，未知排序字段退回默认排序
func (c Config) Normalize() Config {
	if c.SortDirection == "" {
		c.SortDirection = Desc
	}
	if c.UnitSystem == "" {
		c.UnitSystem = units.Metric
	}
	if c.Country == "" {
		c.Country = CountryAll
	}
	if !IsSortable(c.SortKey) {
		c.SortKey = DefaultSortKey
		c.SortDirection = Desc
	}
	if c.Chart.Mode == ChartHistogram {
		c.Chart.SecondMetric = ""
	}
	return c
}

// IsSortable 是否可排序字段
func IsSortable(key string) bool {
	if key == ColumnStartTime {
		return true
	}
	_, ok := Lookup(key)
	return ok
}

// ParsePeriod 解析 "7d" / "30d" / "all" 形式的时间范围
func ParsePeriod(s string, now time.Time) (Period, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return Period{Label: "all"}, nil
	}
	if !strings.HasSuffix(s, "d") {
		return Period{}, fmt.Errorf("%w: period %q", ErrInvalidConfig, s)
	}
	days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil || days <= 0 {
		return Period{}, fmt.Errorf("%w: period %q", ErrInvalidConfig, s)
	}
	from := now.AddDate(0, 0, -days)
	return Period{Label: s, From: &from}, nil
}
