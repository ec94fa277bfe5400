package store

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/denysvitali/haystack-go/model"
	"github.com/denysvitali/haystack-go/store/models"
)

// DB is a Store backed by PostgreSQL with PostGIS. The (found_at, accessory_id) primary key
// keeps the first fix stored at a timestamp, like Memory does.
type DB struct {
	db *gorm.DB
}

var _ Store = (*DB)(nil)

func OpenPostgres(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:        dsn,
		DriverName: "postgres",
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewDB(db)
}

func NewDB(db *gorm.DB) (*DB, error) {
	m := []any{
		&models.Location{},
		&models.Accessory{},
	}
	for _, m := range m {
		if err := db.AutoMigrate(m); err != nil {
			return nil, fmt.Errorf("failed to migrate model: %w", err)
		}
	}
	return &DB{db: db}, nil
}

func (s *DB) Register(ctx context.Context, acc model.Accessory) error {
	tx := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "icon", "color", "deployed", "updated_at"}),
		}).
		Create(models.NewAccessory(acc))
	if tx.Error != nil {
		return fmt.Errorf("unable to register accessory %s: %w", acc.ID, tx.Error)
	}
	return nil
}

func (s *DB) Merge(ctx context.Context, accessoryID string, fixes []model.LocationFix) (MergeResult, error) {
	var res MergeResult
	for _, f := range fixes {
		loc, err := models.NewLocation(accessoryID, f)
		if err != nil {
			return res, err
		}
		tx := s.db.
			WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(loc)
		if tx.Error != nil {
			return res, fmt.Errorf("unable to insert location: %w", tx.Error)
		}
		if tx.RowsAffected > 0 {
			res.Added = append(res.Added, f)
			continue
		}

		var stored models.Location
		tx = s.db.
			WithContext(ctx).
			Where("accessory_id = ? AND found_at = ?", accessoryID, f.Timestamp).
			First(&stored)
		if tx.Error != nil {
			return res, fmt.Errorf("unable to fetch conflicting location: %w", tx.Error)
		}
		if stored.Fix().SamePosition(f) {
			res.Duplicates++
		} else {
			logger.Debugf("%s: keeping stored fix at %s over conflicting one", accessoryID, f.Timestamp)
			res.Conflicts++
		}
	}
	return res, nil
}

func (s *DB) Query(ctx context.Context, accessoryID string, w model.TimeWindow) ([]model.LocationFix, error) {
	var locations []models.Location
	tx := s.db.
		WithContext(ctx).
		Where("accessory_id = ? AND found_at >= ? AND found_at < ?", accessoryID, w.Start, w.End()).
		Order("found_at asc").
		Find(&locations)
	if tx.Error != nil {
		return nil, fmt.Errorf("unable to fetch locations: %w", tx.Error)
	}
	fixes := make([]model.LocationFix, 0, len(locations))
	for _, l := range locations {
		fixes = append(fixes, l.Fix())
	}
	return fixes, nil
}

func (s *DB) Latest(ctx context.Context, accessoryID string) (*model.LocationFix, error) {
	var location models.Location
	tx := s.db.
		WithContext(ctx).
		Where("accessory_id = ?", accessoryID).
		Order("found_at desc").
		First(&location)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if tx.Error != nil {
		return nil, fmt.Errorf("unable to fetch location: %w", tx.Error)
	}
	fix := location.Fix()
	return &fix, nil
}
