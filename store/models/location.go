package models

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/denysvitali/haystack-go/model"
)

const SRID = 4326

type GeomPoint geom.Point

// Value return geometry point value, implement driver.Valuer interface
func (g GeomPoint) Value() (driver.Value, error) {
	b := geom.Point(g)
	bp := &b
	ewkbPt := ewkb.Point{Point: bp.SetSRID(SRID)}
	return ewkbPt.Value()
}

// Scan scan value into geom.Point, implements sql.Scanner interface
func (g *GeomPoint) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unexpected geometry type %T", value)
	}
	t, err := hex.DecodeString(string(raw))
	if err != nil {
		return err
	}
	gt, err := ewkb.Unmarshal(t)
	if err != nil {
		return err
	}
	p, ok := gt.(*geom.Point)
	if !ok {
		return fmt.Errorf("unexpected geometry %T", gt)
	}
	*g = GeomPoint(*p)
	return nil
}

func NewGeomPoint(lat, lng float64) (*GeomPoint, error) {
	p, err := geom.NewPoint(geom.XY).SetSRID(SRID).SetCoords(geom.Coord{lng, lat})
	if err != nil {
		return nil, err
	}
	gp := GeomPoint(*p)
	return &gp, nil
}

func (g *GeomPoint) LatLng() (float64, float64) {
	p := geom.Point(*g)
	return p.Y(), p.X()
}

type Location struct {
	FoundAt     time.Time  `gorm:"primaryKey;index:idx_found_at"`
	AccessoryID string     `gorm:"primaryKey;index:idx_accessory_id"`
	ReportedAt  time.Time  `gorm:"index:idx_reported_at"`
	Geometry    *GeomPoint `gorm:"type:geometry(POINT,4326);index:idx_geometry"`
	Accuracy    int
	Confidence  int `gorm:"index:idx_confidence"`
	Status      int
}

func NewLocation(accessoryID string, fix model.LocationFix) (*Location, error) {
	p, err := NewGeomPoint(fix.Latitude, fix.Longitude)
	if err != nil {
		return nil, fmt.Errorf("unable to create point: %w", err)
	}
	return &Location{
		FoundAt:     fix.Timestamp,
		AccessoryID: accessoryID,
		ReportedAt:  fix.PublishedAt,
		Geometry:    p,
		Accuracy:    fix.Accuracy,
		Confidence:  fix.Confidence,
		Status:      fix.Status,
	}, nil
}

func (l Location) Fix() model.LocationFix {
	f := model.LocationFix{
		Timestamp:   l.FoundAt.UTC(),
		PublishedAt: l.ReportedAt.UTC(),
		Accuracy:    l.Accuracy,
		Confidence:  l.Confidence,
		Status:      l.Status,
	}
	if l.Geometry != nil {
		f.Latitude, f.Longitude = l.Geometry.LatLng()
	}
	return f
}
