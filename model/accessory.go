package model

import "time"

// Accessory is a tracked device. Its location history lives in a store keyed by ID.
type Accessory struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Icon         string       `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color        string       `json:"color,omitempty" yaml:"color,omitempty"`
	MasterSecret MasterSecret `json:"-" yaml:"masterSecret"`
	Deployed     bool         `json:"deployed" yaml:"deployed"`
	CreatedAt    time.Time    `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}
