package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/binding"

	"github.com/langchou/tripgazer/internal/spatial"
	"github.com/langchou/tripgazer/internal/tripview"
	"github.com/langchou/tripgazer/internal/units"
	"github.com/langchou/tripgazer/internal/viewstate"
)

var errBadQuery = errors.New("bad query")

// viewQuery 行程视图查询参数，nil 表示未出现
type viewQuery struct {
	SortBy        *string `form:"sort_by"`
	SortDirection *string `form:"sort_direction" binding:"omitempty,oneof=asc desc"`
	UnitSystem    *string `form:"unit_system" binding:"omitempty,oneof=metric imperial_us imperial_uk"`
	Country       *string `form:"country"`
	Period        *string `form:"period"`
	Chart         *string `form:"chart" binding:"omitempty,oneof=none off histogram line"`
	Metric        *string `form:"metric"`
	Metric2       *string `form:"metric2"`
	Area          *string `form:"area"`
	StartArea     *string `form:"start_area"`
	EndArea       *string `form:"end_area"`
}

// normalize 去除空白，枚举值转小写，空值视为未出现 (metric2 为空表示清除第二指标)
func (q *viewQuery) normalize() {
	for _, p := range []**string{&q.SortBy, &q.Country, &q.Period, &q.Metric, &q.Area, &q.StartArea, &q.EndArea} {
		*p = trimmed(*p, false)
	}
	for _, p := range []**string{&q.SortDirection, &q.UnitSystem, &q.Chart} {
		*p = trimmed(*p, true)
	}
	if q.Metric2 != nil {
		v := strings.TrimSpace(*q.Metric2)
		q.Metric2 = &v
	}
}

func trimmed(p *string, lower bool) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if lower {
		v = strings.ToLower(v)
	}
	if v == "" {
		return nil
	}
	return &v
}

// parseViewQuery 把查询参数转为视图状态的局部更新，未出现的参数保持已保存的值
func parseViewQuery(values url.Values) (viewstate.Patch, error) {
	var (
		q viewQuery
		p viewstate.Patch
	)
	if err := binding.MapFormWithTag(&q, values, "form"); err != nil {
		return p, fmt.Errorf("%w: %v", errBadQuery, err)
	}
	q.normalize()
	if err := binding.Validator.ValidateStruct(&q); err != nil {
		return p, fmt.Errorf("%w: %v", errBadQuery, err)
	}

	p.SortKey = q.SortBy
	p.Country = q.Country
	p.Period = q.Period
	p.ChartMetric = q.Metric
	p.SecondMetric = q.Metric2
	if q.SortDirection != nil {
		dir := tripview.Direction(*q.SortDirection)
		p.SortDirection = &dir
	}
	if q.UnitSystem != nil {
		system, err := units.ParseSystem(*q.UnitSystem)
		if err != nil {
			return p, fmt.Errorf("%w: %v", errBadQuery, err)
		}
		p.UnitSystem = &system
	}
	if q.Chart != nil {
		mode := chartMode(*q.Chart)
		p.ChartMode = &mode
	}

	filter, ok, err := q.spatialFilter()
	if err != nil {
		return p, err
	}
	if ok {
		p.Spatial = &filter
	}
	return p, nil
}

func chartMode(s string) tripview.ChartMode {
	switch s {
	case string(tripview.ChartHistogram):
		return tripview.ChartHistogram
	case string(tripview.ChartLine):
		return tripview.ChartLine
	}
	return tripview.ChartNone
}

// spatialFilter area / start_area / end_area 同一请求只能出现一个
func (q *viewQuery) spatialFilter() (spatial.Filter, bool, error) {
	var (
		role  spatial.Role
		value string
		count int
	)
	for _, c := range []struct {
		v    *string
		role spatial.Role
	}{
		{q.Area, spatial.RoleArea},
		{q.StartArea, spatial.RoleStart},
		{q.EndArea, spatial.RoleEnd},
	} {
		if c.v != nil {
			role, value = c.role, *c.v
			count++
		}
	}
	switch count {
	case 0:
		return spatial.None(), false, nil
	case 1:
	default:
		return spatial.None(), false, fmt.Errorf("%w: only one of area, start_area, end_area may be set", errBadQuery)
	}

	b, err := parseBounds(value)
	if err != nil {
		return spatial.None(), false, err
	}
	filter, err := spatial.New(role, &b)
	if err != nil {
		return spatial.None(), false, fmt.Errorf("%w: %v", errBadQuery, err)
	}
	return filter, true, nil
}

// parseBounds 解析 "south,west,north,east"
func parseBounds(s string) (spatial.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return spatial.Bounds{}, fmt.Errorf("%w: bounds %q want south,west,north,east", errBadQuery, s)
	}
	var vals [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return spatial.Bounds{}, fmt.Errorf("%w: bounds %q", errBadQuery, s)
		}
		vals[i] = v
	}
	return spatial.Bounds{South: vals[0], West: vals[1], North: vals[2], East: vals[3]}, nil
}
