package models

import (
	"time"

	"github.com/denysvitali/haystack-go/model"
)

// Accessory holds display metadata only; master secrets never reach the database.
type Accessory struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	Deployed  bool   `json:"deployed"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAccessory(a model.Accessory) *Accessory {
	return &Accessory{
		ID:       a.ID,
		Name:     a.Name,
		Icon:     a.Icon,
		Color:    a.Color,
		Deployed: a.Deployed,
	}
}
