package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/langchou/tripgazer/internal/metrics"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVehicles,
		migrationCreateTrips,
		migrationCreateTripRoutePoints,
		migrationCreateViewSettings,
		migrationAddCountriesToTrips,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// observe 记录查询耗时
func observe(operation string, start time.Time, err error) {
	metrics.RecordDBQuery(operation, time.Since(start), err)
}

// 数据库迁移 SQL
const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    vin VARCHAR(17) NOT NULL UNIQUE,
    name VARCHAR(255),
    model VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

const migrationCreateTrips = `
CREATE TABLE IF NOT EXISTS trips (
    id BIGSERIAL PRIMARY KEY,
    vin VARCHAR(17) NOT NULL REFERENCES vehicles(vin),
    start_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    end_timestamp TIMESTAMP WITH TIME ZONE,
    start_address TEXT NOT NULL DEFAULT 'Geocoding...',
    end_address TEXT NOT NULL DEFAULT 'Geocoding...',
    start_lat DOUBLE PRECISION,
    start_lon DOUBLE PRECISION,
    end_lat DOUBLE PRECISION,
    end_lon DOUBLE PRECISION,
    distance_km DOUBLE PRECISION,
    fuel_consumption_l_100km DOUBLE PRECISION,
    duration_seconds DOUBLE PRECISION,
    average_speed_kmh DOUBLE PRECISION,
    max_speed_kmh DOUBLE PRECISION,
    ev_distance_km DOUBLE PRECISION,
    ev_duration_seconds DOUBLE PRECISION,
    score_global DOUBLE PRECISION,
    score_acceleration DOUBLE PRECISION,
    score_braking DOUBLE PRECISION,
    score_advice DOUBLE PRECISION,
    score_constant_speed DOUBLE PRECISION,
    UNIQUE (vin, start_timestamp)
);
CREATE INDEX IF NOT EXISTS idx_trips_vin ON trips(vin);
CREATE INDEX IF NOT EXISTS idx_trips_start_timestamp ON trips(start_timestamp);
CREATE INDEX IF NOT EXISTS idx_trips_start_address ON trips(start_address);
`

const migrationCreateTripRoutePoints = `
CREATE TABLE IF NOT EXISTS trip_route_points (
    trip_id BIGINT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
    seq INT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE,
    PRIMARY KEY (trip_id, seq)
);
`

const migrationCreateViewSettings = `
CREATE TABLE IF NOT EXISTS view_settings (
    key VARCHAR(255) PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

const migrationAddCountriesToTrips = `
ALTER TABLE trips ADD COLUMN IF NOT EXISTS countries TEXT[] NOT NULL DEFAULT '{}';
CREATE INDEX IF NOT EXISTS idx_trips_countries ON trips USING GIN(countries);
`
