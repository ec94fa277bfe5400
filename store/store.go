// Package store keeps the location history of every accessory, ordered by timestamp.
package store

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/haystack-go/model"
)

var logger = logrus.StandardLogger().WithField("pkg", "store")

// Store is the only writer of accessory history. Merges on one accessory are serialized;
// different accessories are independent.
type Store interface {
	Register(ctx context.Context, acc model.Accessory) error
	Merge(ctx context.Context, accessoryID string, fixes []model.LocationFix) (MergeResult, error)
	Query(ctx context.Context, accessoryID string, w model.TimeWindow) ([]model.LocationFix, error)
	// Latest returns nil when the accessory has no history.
	Latest(ctx context.Context, accessoryID string) (*model.LocationFix, error)
}

type MergeResult struct {
	Added      []model.LocationFix
	Duplicates int
	// Conflicts counts fixes that share a timestamp with a stored fix but not its position.
	// The stored fix is kept.
	Conflicts int
}
