package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tripgazer/internal/models"
)

// TripRepository 行程数据仓库
type TripRepository struct {
	db *DB
}

// NewTripRepository 创建行程仓库
func NewTripRepository(db *DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `id, vin, start_timestamp, end_timestamp, start_address, end_address,
	start_lat, start_lon, end_lat, end_lon,
	distance_km, fuel_consumption_l_100km, duration_seconds, average_speed_kmh, max_speed_kmh,
	ev_distance_km, ev_duration_seconds,
	score_global, score_acceleration, score_braking, score_advice, score_constant_speed,
	countries`

func scanTrip(row pgx.Row) (*models.Trip, error) {
	t := &models.Trip{}
	err := row.Scan(
		&t.ID,
		&t.VIN,
		&t.StartTime,
		&t.EndTime,
		&t.StartAddress,
		&t.EndAddress,
		&t.StartLatitude,
		&t.StartLongitude,
		&t.EndLatitude,
		&t.EndLongitude,
		&t.DistanceKm,
		&t.FuelConsumptionL100Km,
		&t.DurationSeconds,
		&t.AverageSpeedKmh,
		&t.MaxSpeedKmh,
		&t.EVDistanceKm,
		&t.EVDurationSeconds,
		&t.ScoreGlobal,
		&t.ScoreAcceleration,
		&t.ScoreBraking,
		&t.ScoreAdvice,
		&t.ScoreConstantSpeed,
		&t.Countries,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID 获取行程
func (r *TripRepository) GetByID(ctx context.Context, id int64) (*models.Trip, error) {
	start := time.Now()
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	t, err := scanTrip(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		observe("get_trip", start, nil)
		return nil, fmt.Errorf("get trip %d: %w", id, ErrNotFound)
	}
	observe("get_trip", start, err)
	if err != nil {
		return nil, fmt.Errorf("get trip by id: %w", err)
	}
	return t, nil
}

// ListByVIN 获取车辆行程，since 为 nil 时返回全部。按开始时间倒序
func (r *TripRepository) ListByVIN(ctx context.Context, vin string, since *time.Time) ([]*models.Trip, error) {
	start := time.Now()
	query := `SELECT ` + tripColumns + `
		FROM trips WHERE vin = $1 AND ($2::timestamptz IS NULL OR start_timestamp >= $2)
		ORDER BY start_timestamp DESC`
	rows, err := r.db.Pool.Query(ctx, query, vin, since)
	if err != nil {
		observe("list_trips", start, err)
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			observe("list_trips", start, err)
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	err = rows.Err()
	observe("list_trips", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	return trips, nil
}

// ListCountries 车辆行程涉及的国家，用于国家过滤下拉
func (r *TripRepository) ListCountries(ctx context.Context, vin string) ([]string, error) {
	query := `
		SELECT DISTINCT c FROM trips, unnest(countries) AS c
		WHERE vin = $1 ORDER BY c
	`
	rows, err := r.db.Pool.Query(ctx, query, vin)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	countries, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan countries: %w", err)
	}
	return countries, nil
}

// DailySummary 按天聚合最近 days 天的行程，没有行程的日期各值为 NULL
func (r *TripRepository) DailySummary(ctx context.Context, vin string, days int) ([]*models.PeriodBucket, error) {
	start := time.Now()
	query := `
		WITH days AS (
			SELECT generate_series(
				(NOW() AT TIME ZONE 'UTC')::date - $2::int,
				(NOW() AT TIME ZONE 'UTC')::date,
				INTERVAL '1 day'
			)::date AS day
		), agg AS (
			SELECT (start_timestamp AT TIME ZONE 'UTC')::date AS day,
				SUM(distance_km) AS distance,
				SUM(fuel_consumption_l_100km * distance_km / 100) AS fuel,
				SUM(ev_distance_km) AS ev_distance,
				SUM(ev_duration_seconds) AS ev_duration,
				AVG(score_global) AS score,
				SUM(duration_seconds) AS duration
			FROM trips
			WHERE vin = $1 AND start_timestamp >= NOW() - make_interval(days => $2::int + 1)
			GROUP BY 1
		)
		SELECT to_char(d.day, 'YYYY-MM-DD'),
			a.distance,
			CASE WHEN a.fuel > 0 AND a.distance > 0 THEN a.fuel / a.distance * 100 END,
			a.ev_distance,
			a.ev_duration,
			ROUND(a.score),
			a.duration,
			CASE WHEN a.duration > 0 AND a.distance > 0 THEN a.distance / (a.duration / 3600) END
		FROM days d LEFT JOIN agg a ON a.day = d.day
		ORDER BY d.day
	`
	rows, err := r.db.Pool.Query(ctx, query, vin, days)
	if err != nil {
		observe("daily_summary", start, err)
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	defer rows.Close()

	var buckets []*models.PeriodBucket
	for rows.Next() {
		b := &models.PeriodBucket{}
		if err := rows.Scan(
			&b.Date,
			&b.DistanceKm,
			&b.FuelConsumptionL100Km,
			&b.EVDistanceKm,
			&b.EVDurationSeconds,
			&b.ScoreGlobal,
			&b.DurationSeconds,
			&b.AverageSpeedKmh,
		); err != nil {
			observe("daily_summary", start, err)
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		buckets = append(buckets, b)
	}
	err = rows.Err()
	observe("daily_summary", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate daily summary: %w", err)
	}
	return buckets, nil
}

// GeocodeStatus 待逆地理编码的行程数与总数
func (r *TripRepository) GeocodeStatus(ctx context.Context) (*models.GeocodeStatus, error) {
	status := &models.GeocodeStatus{}
	query := `
		SELECT COUNT(*) FILTER (WHERE start_address = $1 OR end_address = $1), COUNT(*)
		FROM trips
	`
	if err := r.db.Pool.QueryRow(ctx, query, models.GeocodingPending).Scan(&status.Pending, &status.Total); err != nil {
		return nil, fmt.Errorf("geocode status: %w", err)
	}
	return status, nil
}

// ListPendingGeocode 获取待逆地理编码的行程
func (r *TripRepository) ListPendingGeocode(ctx context.Context, limit int) ([]*models.Trip, error) {
	query := `SELECT ` + tripColumns + `
		FROM trips WHERE start_address = $1 OR end_address = $1
		ORDER BY start_timestamp DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, query, models.GeocodingPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending geocode: %w", err)
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// UpdateAddresses 更新行程起止地址与途经国家
func (r *TripRepository) UpdateAddresses(ctx context.Context, id int64, startAddress, endAddress string, countries []string) error {
	if countries == nil {
		countries = []string{}
	}
	query := `UPDATE trips SET start_address = $1, end_address = $2, countries = $3 WHERE id = $4`
	if _, err := r.db.Pool.Exec(ctx, query, startAddress, endAddress, countries, id); err != nil {
		return fmt.Errorf("update trip addresses: %w", err)
	}
	return nil
}
