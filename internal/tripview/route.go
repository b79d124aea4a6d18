package tripview

import (
	"github.com/langchou/tripgazer/internal/models"
	"github.com/langchou/tripgazer/internal/spatial"
)

// RouteKind 路线展示方式
type RouteKind string

const (
	RouteDetailed  RouteKind = "detailed"
	RouteEstimated RouteKind = "estimated"
	RouteNone      RouteKind = "none"
)

// RoutePlan 行程路线：有轨迹点用轨迹，否则用起终点直线
type RoutePlan struct {
	TripID int64           `json:"trip_id"`
	Kind   RouteKind       `json:"kind"`
	Points []spatial.Point `json:"points"`
}

// PlanRoute 决定行程路线的展示方式
func PlanRoute(trip *models.Trip, points []*models.RoutePoint) RoutePlan {
	plan := RoutePlan{Kind: RouteNone, Points: []spatial.Point{}}
	if trip == nil {
		return plan
	}
	plan.TripID = trip.ID

	for _, p := range points {
		if p == nil {
			continue
		}
		plan.Points = append(plan.Points, spatial.Point{Lat: p.Latitude, Lon: p.Longitude})
	}
	if len(plan.Points) > 0 {
		plan.Kind = RouteDetailed
		return plan
	}

	start := spatial.NewPoint(trip.StartLatitude, trip.StartLongitude)
	end := spatial.NewPoint(trip.EndLatitude, trip.EndLongitude)
	if start != nil && end != nil {
		plan.Kind = RouteEstimated
		plan.Points = []spatial.Point{*start, *end}
	}
	return plan
}
