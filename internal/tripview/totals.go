package tripview

import (
	"math"

	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/units"
)

// Totals 过滤后行程的汇总，数值为显示单位
type Totals struct {
	TripCount          int      `json:"trip_count"`
	Distance           *float64 `json:"distance"`
	EVDistance         *float64 `json:"ev_distance"`
	Fuel               *float64 `json:"fuel"`
	EVRatioPercent     *float64 `json:"ev_ratio_percent"`
	AverageConsumption *float64 `json:"average_consumption"`
	DurationMinutes    *float64 `json:"duration_minutes"`
	DistanceUnit       string   `json:"distance_unit"`
	ConsumptionUnit    string   `json:"consumption_unit"`
	FuelUnit           string   `json:"fuel_unit"`
}

// Summarize 计算行程汇总 (公开给车辆列表接口使用)
func Summarize(trips []*models.Trip, system units.System) *Totals {
	return computeTotals(trips, system)
}

func computeTotals(trips []*models.Trip, system units.System) *Totals {
	var (
		distance, evDistance, liters, duration float64
		fuelDistance                           float64
		hasDistance, hasEV, hasFuel, hasDur    bool
		count                                  int
	)

	for _, t := range trips {
		if t == nil {
			continue
		}
		count++
		if t.DistanceKm != nil {
			distance += *t.DistanceKm
			hasDistance = true
		}
		if t.EVDistanceKm != nil {
			evDistance += *t.EVDistanceKm
			hasEV = true
		}
		if t.DistanceKm != nil && t.FuelConsumptionL100Km != nil && *t.FuelConsumptionL100Km > 0 {
			liters += *t.DistanceKm * *t.FuelConsumptionL100Km / 100
			fuelDistance += *t.DistanceKm
			hasFuel = true
		}
		if t.DurationSeconds != nil {
			duration += *t.DurationSeconds
			hasDur = true
		}
	}

	out := &Totals{
		TripCount:       count,
		DistanceUnit:    units.Label(units.Distance, system),
		ConsumptionUnit: units.Label(units.Consumption, system),
		FuelUnit:        units.Label(units.Volume, system),
	}
	if hasDistance {
		out.Distance = finite(units.Convert(distance, units.Distance, system))
	}
	if hasEV {
		out.EVDistance = finite(units.Convert(evDistance, units.Distance, system))
		if distance > 0 {
			out.EVRatioPercent = finite(evDistance / distance * 100)
		}
	}
	if hasFuel {
		out.Fuel = finite(units.Convert(liters, units.Volume, system))
		if fuelDistance > 0 {
			out.AverageConsumption = finite(units.Convert(liters/fuelDistance*100, units.Consumption, system))
		}
	}
	if hasDur {
		out.DurationMinutes = finite(units.Convert(duration, units.Duration, system))
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
