package models

import "time"

// Property is a rentable listing. The engine keeps a read-only seed cache;
// full property CRUD lives in a collaborating service.
type Property struct {
	ID        int64     `yaml:"id"`
	UID       string    `yaml:"uid"`
	Name      string    `yaml:"name"`
	SortOrder int64     `yaml:"sort_order" json:"sort_order"`
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}
