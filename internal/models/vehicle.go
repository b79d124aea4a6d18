package models

import "time"

// Vehicle 车辆信息，VIN 作为视图状态的分区键
type Vehicle struct {
	ID        int64     `json:"id" db:"id"`
	VIN       string    `json:"vin" db:"vin"`
	Name      string    `json:"name" db:"name"`
	Model     string    `json:"model" db:"model"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Settings 键值设置 (视图状态持久化)
type Settings struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
