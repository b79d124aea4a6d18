package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tripgazer/internal/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// GetByVIN 通过 VIN 获取车辆
func (r *VehicleRepository) GetByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	query := `
		SELECT id, vin, COALESCE(name, ''), COALESCE(model, ''), created_at, updated_at
		FROM vehicles WHERE vin = $1
	`
	v := &models.Vehicle{}
	err := r.db.Pool.QueryRow(ctx, query, vin).Scan(
		&v.ID,
		&v.VIN,
		&v.Name,
		&v.Model,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get vehicle %s: %w", vin, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by vin: %w", err)
	}
	return v, nil
}

// List 获取所有车辆
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `
		SELECT id, vin, COALESCE(name, ''), COALESCE(model, ''), created_at, updated_at
		FROM vehicles ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v := &models.Vehicle{}
		if err := rows.Scan(&v.ID, &v.VIN, &v.Name, &v.Model, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}

	return vehicles, rows.Err()
}
