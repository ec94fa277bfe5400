package responses

import (
	"sort"

	"github.com/denysvitali/haystack-go/model"
)

type Accessory struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Icon              string             `json:"icon,omitempty"`
	Color             string             `json:"color,omitempty"`
	Deployed          bool               `json:"deployed"`
	AdvertisementKey  string             `json:"advertisement_key,omitempty"`
	AdvertisementHash string             `json:"advertisement_hash,omitempty"`
	LastLocation      *model.LocationFix `json:"last_location,omitempty"`
}

type ByAccessoryID []Accessory

func (b ByAccessoryID) Len() int {
	return len(b)
}

func (b ByAccessoryID) Less(i, j int) bool {
	return b[i].ID < b[j].ID
}

func (b ByAccessoryID) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

var _ sort.Interface = ByAccessoryID{}

type History struct {
	AccessoryID string              `json:"accessory_id"`
	Window      string              `json:"window"`
	Locations   []model.LocationFix `json:"locations"`
}
