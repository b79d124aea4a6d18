package models

import (
	"time"
)

// GeocodingPending 尚未完成逆地理编码的地址占位
const GeocodingPending = "Geocoding..."

// Trip 行程记录，数值字段均为公制标准单位，nil 表示不适用
type Trip struct {
	ID             int64      `json:"id" db:"id"`
	VIN            string     `json:"vin" db:"vin"`
	StartTime      time.Time  `json:"start_timestamp" db:"start_timestamp"`
	EndTime        *time.Time `json:"end_timestamp,omitempty" db:"end_timestamp"`
	StartAddress   string     `json:"start_address" db:"start_address"`
	EndAddress     string     `json:"end_address" db:"end_address"`
	StartLatitude  *float64   `json:"start_lat,omitempty" db:"start_lat"`
	StartLongitude *float64   `json:"start_lon,omitempty" db:"start_lon"`
	EndLatitude    *float64   `json:"end_lat,omitempty" db:"end_lat"`
	EndLongitude   *float64   `json:"end_lon,omitempty" db:"end_lon"`

	DistanceKm            *float64 `json:"distance_km,omitempty" db:"distance_km"`
	FuelConsumptionL100Km *float64 `json:"fuel_consumption_l_100km,omitempty" db:"fuel_consumption_l_100km"`
	DurationSeconds       *float64 `json:"duration_seconds,omitempty" db:"duration_seconds"`
	AverageSpeedKmh       *float64 `json:"average_speed_kmh,omitempty" db:"average_speed_kmh"`
	MaxSpeedKmh           *float64 `json:"max_speed_kmh,omitempty" db:"max_speed_kmh"`
	EVDistanceKm          *float64 `json:"ev_distance_km,omitempty" db:"ev_distance_km"`
	EVDurationSeconds     *float64 `json:"ev_duration_seconds,omitempty" db:"ev_duration_seconds"`

	// 驾驶评分 (0-100)
	ScoreGlobal        *float64 `json:"score_global,omitempty" db:"score_global"`
	ScoreAcceleration  *float64 `json:"score_acceleration,omitempty" db:"score_acceleration"`
	ScoreBraking       *float64 `json:"score_braking,omitempty" db:"score_braking"`
	ScoreAdvice        *float64 `json:"score_advice,omitempty" db:"score_advice"`
	ScoreConstantSpeed *float64 `json:"score_constant_speed,omitempty" db:"score_constant_speed"`

	Countries []string `json:"countries,omitempty" db:"countries"`
}

// HasCountry 国家列表成员判断
func (t *Trip) HasCountry(country string) bool {
	for _, c := range t.Countries {
		if c == country {
			return true
		}
	}
	return false
}

// RoutePoint 行程轨迹点
type RoutePoint struct {
	TripID     int64      `json:"trip_id" db:"trip_id"`
	Seq        int        `json:"seq" db:"seq"`
	Latitude   float64    `json:"lat" db:"lat"`
	Longitude  float64    `json:"lon" db:"lon"`
	RecordedAt *time.Time `json:"recorded_at,omitempty" db:"recorded_at"`
}

// PeriodBucket 按天聚合的行程数据，缺失值为 nil (图表中显示为断点)
type PeriodBucket struct {
	Date                  string   `json:"date"`
	DistanceKm            *float64 `json:"distance_km"`
	FuelConsumptionL100Km *float64 `json:"fuel_consumption_l_100km"`
	EVDistanceKm          *float64 `json:"ev_distance_km"`
	EVDurationSeconds     *float64 `json:"ev_duration_seconds"`
	ScoreGlobal           *float64 `json:"score_global"`
	DurationSeconds       *float64 `json:"duration_seconds"`
	AverageSpeedKmh       *float64 `json:"average_speed_kmh"`
}

// GeocodeStatus 逆地理编码进度
type GeocodeStatus struct {
	Pending int64 `json:"pending"`
	Total   int64 `json:"total"`
}
