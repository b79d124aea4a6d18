package units

import (
	"fmt"
	"math"
	"strconv"
)

// System 单位制
type System string

const (
	Metric     System = "metric"
	ImperialUS System = "imperial_us"
	ImperialUK System = "imperial_uk"
)

// Kind 物理量类型
type Kind int

const (
	Distance Kind = iota
	Consumption
	Speed
	Duration
	Volume
)

// 换算常量
const (
	KmToMiles = 0.621371
	// L/100km 与 MPG 互换的分子
	USGallonFactor = 235.214
	UKGallonFactor = 282.481
	SecondsPerMin  = 60.0
	// 每加仑升数
	LitersPerUSGallon = 3.785411784
	LitersPerUKGallon = 4.54609
)

// NotAvailable 无法显示的值
const NotAvailable = "N/A"

// ParseSystem 解析单位制，未知值返回错误
func ParseSystem(s string) (System, error) {
	switch System(s) {
	case Metric, ImperialUS, ImperialUK:
		return System(s), nil
	case "":
		return Metric, nil
	}
	return "", fmt.Errorf("unknown unit system %q", s)
}

// IsImperial 是否英制
func (s System) IsImperial() bool {
	return s == ImperialUS || s == ImperialUK
}

func (k Kind) String() string {
	switch k {
	case Distance:
		return "distance"
	case Consumption:
		return "consumption"
	case Speed:
		return "speed"
	case Duration:
		return "duration"
	case Volume:
		return "volume"
	}
	return "unknown"
}

// Convert 将公制标准值换算为目标单位制的显示值
// 油耗在英制下 value <= 0 时返回 NaN
func Convert(value float64, kind Kind, target System) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return math.NaN()
	}

	switch kind {
	case Distance, Speed:
		if target.IsImperial() {
			return value * KmToMiles
		}
		return value
	case Consumption:
		switch target {
		case ImperialUS:
			return gallons(USGallonFactor, value)
		case ImperialUK:
			return gallons(UKGallonFactor, value)
		}
		return value
	case Duration:
		return value / SecondsPerMin
	case Volume:
		return value / litersPerGallon(target)
	}
	return math.NaN()
}

// ToMetric Convert 的逆运算
func ToMetric(value float64, kind Kind, from System) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return math.NaN()
	}

	switch kind {
	case Distance, Speed:
		if from.IsImperial() {
			return value / KmToMiles
		}
		return value
	case Consumption:
		// MPG -> L/100km 与正向公式同构
		switch from {
		case ImperialUS:
			return gallons(USGallonFactor, value)
		case ImperialUK:
			return gallons(UKGallonFactor, value)
		}
		return value
	case Duration:
		return value * SecondsPerMin
	case Volume:
		return value * litersPerGallon(from)
	}
	return math.NaN()
}

// litersPerGallon 公制下为 1
func litersPerGallon(s System) float64 {
	switch s {
	case ImperialUS:
		return LitersPerUSGallon
	case ImperialUK:
		return LitersPerUKGallon
	}
	return 1
}

func gallons(factor, value float64) float64 {
	if value <= 0 {
		return math.NaN()
	}
	return factor / value
}

// Label 单位标签
func Label(kind Kind, system System) string {
	switch kind {
	case Distance:
		if system.IsImperial() {
			return "mi"
		}
		return "km"
	case Consumption:
		switch system {
		case ImperialUS:
			return "MPG"
		case ImperialUK:
			return "MPG (UK)"
		}
		return "L/100km"
	case Speed:
		if system.IsImperial() {
			return "mph"
		}
		return "km/h"
	case Duration:
		return "min"
	case Volume:
		switch system {
		case ImperialUS:
			return "gal"
		case ImperialUK:
			return "gal (UK)"
		}
		return "L"
	}
	return ""
}

// Format 按小数位格式化，NaN 显示为 N/A
func Format(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NotAvailable
	}
	return strconv.FormatFloat(value, 'f', decimals, 64)
}
