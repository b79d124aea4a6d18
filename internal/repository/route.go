package repository

import (
	"context"
	"fmt"

	"github.com/langchou/tripgazer/internal/models"
)

// RouteRepository 行程轨迹点仓库
type RouteRepository struct {
	db *DB
}

// NewRouteRepository 创建轨迹仓库
func NewRouteRepository(db *DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// ListByTripID 获取行程的所有轨迹点，按序号排列
func (r *RouteRepository) ListByTripID(ctx context.Context, tripID int64) ([]*models.RoutePoint, error) {
	query := `
		SELECT trip_id, seq, lat, lon, recorded_at
		FROM trip_route_points WHERE trip_id = $1 ORDER BY seq
	`
	rows, err := r.db.Pool.Query(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("list route points: %w", err)
	}
	defer rows.Close()

	var points []*models.RoutePoint
	for rows.Next() {
		p := &models.RoutePoint{}
		err := rows.Scan(
			&p.TripID,
			&p.Seq,
			&p.Latitude,
			&p.Longitude,
			&p.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan route point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}
