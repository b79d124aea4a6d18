// Package spatial 行程起止点的矩形区域过滤
package spatial

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Point 经纬度坐标
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint 经纬度任一缺失时返回 nil
func NewPoint(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &Point{Lat: *lat, Lon: *lon}
}

// Bounds 闭区间矩形 (south/west/north/east)
type Bounds struct {
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
	North float64 `json:"north" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180"`
}

// Contains 边界上的点视为在内
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North &&
		p.Lon >= b.West && p.Lon <= b.East
}

// Validate 检查坐标范围与方向
func (b Bounds) Validate() error {
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range: south=%v north=%v", b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("longitude out of range: west=%v east=%v", b.West, b.East)
	}
	if b.South > b.North {
		return fmt.Errorf("south %v is north of %v", b.South, b.North)
	}
	if b.West > b.East {
		return fmt.Errorf("west %v is east of %v", b.West, b.East)
	}
	return nil
}

// Role 过滤角色
type Role string

const (
	RoleNone  Role = ""
	RoleArea  Role = "area"
	RoleStart Role = "start"
	RoleEnd   Role = "end"
)

// ParseRole 解析角色名，兼容 start_area / end_area
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "none":
		return RoleNone, nil
	case "area":
		return RoleArea, nil
	case "start", "start_area":
		return RoleStart, nil
	case "end", "end_area":
		return RoleEnd, nil
	}
	return RoleNone, fmt.Errorf("unknown spatial filter role %q", s)
}

// Roles 三个角色各自可选的矩形，多个同时存在时取交集
type Roles struct {
	Area  *Bounds
	Start *Bounds
	End   *Bounds
}

// Matches 判断行程起止点是否满足过滤条件
func Matches(start, end *Point, roles Roles) bool {
	if roles.Area != nil {
		startIn := start != nil && roles.Area.Contains(*start)
		endIn := end != nil && roles.Area.Contains(*end)
		if !startIn && !endIn {
			return false
		}
	}
	if roles.Start != nil {
		if start == nil || !roles.Start.Contains(*start) {
			return false
		}
	}
	if roles.End != nil {
		if end == nil || !roles.End.Contains(*end) {
			return false
		}
	}
	return true
}

// ErrNoBounds 非空角色缺少矩形
var ErrNoBounds = errors.New("spatial filter role requires bounds")

// Filter 单一生效的空间过滤: None | Area | StartArea | EndArea
type Filter struct {
	role   Role
	bounds Bounds
}

// None 不过滤
func None() Filter { return Filter{} }

// Area 起点或终点落在矩形内
func Area(b Bounds) Filter { return Filter{role: RoleArea, bounds: b} }

// StartArea 起点落在矩形内
func StartArea(b Bounds) Filter { return Filter{role: RoleStart, bounds: b} }

// EndArea 终点落在矩形内
func EndArea(b Bounds) Filter { return Filter{role: RoleEnd, bounds: b} }

// New 按角色构造
func New(role Role, b *Bounds) (Filter, error) {
	if role == RoleNone {
		return None(), nil
	}
	if b == nil {
		return None(), ErrNoBounds
	}
	if err := b.Validate(); err != nil {
		return None(), fmt.Errorf("invalid bounds: %w", err)
	}
	switch role {
	case RoleArea:
		return Area(*b), nil
	case RoleStart:
		return StartArea(*b), nil
	case RoleEnd:
		return EndArea(*b), nil
	}
	return None(), fmt.Errorf("unknown spatial filter role %q", role)
}

// With 设置某一角色，其余角色随之清除
func (f Filter) With(role Role, b *Bounds) (Filter, error) {
	return New(role, b)
}

// Role 当前角色
func (f Filter) Role() Role { return f.role }

// Bounds 当前矩形
func (f Filter) Bounds() (Bounds, bool) {
	return f.bounds, f.role != RoleNone
}

// IsActive 是否有生效的过滤
func (f Filter) IsActive() bool { return f.role != RoleNone }

// Roles 展开为三角色形式
func (f Filter) Roles() Roles {
	b := f.bounds
	switch f.role {
	case RoleArea:
		return Roles{Area: &b}
	case RoleStart:
		return Roles{Start: &b}
	case RoleEnd:
		return Roles{End: &b}
	}
	return Roles{}
}

// Matches 判断行程起止点
func (f Filter) Matches(start, end *Point) bool {
	return Matches(start, end, f.Roles())
}

type filterJSON struct {
	Role   Role    `json:"role"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// MarshalJSON 序列化为 {"role":..., "bounds":...}
func (f Filter) MarshalJSON() ([]byte, error) {
	out := filterJSON{Role: f.role}
	if f.role != RoleNone {
		b := f.bounds
		out.Bounds = &b
	}
	return json.Marshal(out)
}

// UnmarshalJSON 反序列化并校验
func (f *Filter) UnmarshalJSON(data []byte) error {
	var in filterJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	role, err := ParseRole(string(in.Role))
	if err != nil {
		return err
	}
	parsed, err := New(role, in.Bounds)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
