package haystack

import (
	"context"
	"crypto/sha256"
	"fmt"
	"runtime"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/denysvitali/haystack-go/model"
)

type KeyRef struct {
	AccessoryID string
	KeyPair     model.KeyPair
}

// KeyTable indexes derived keys by advertisement hash. It is read-only once built.
type KeyTable map[model.AdvertisementHash]KeyRef

func (t KeyTable) Add(accessoryID string, kp model.KeyPair) error {
	h, err := Hash(kp.PublicKey)
	if err != nil {
		return err
	}
	t[h] = KeyRef{AccessoryID: accessoryID, KeyPair: kp}
	return nil
}

func (t KeyTable) Hashes() []model.AdvertisementHash {
	return maps.Keys(t)
}

// BuildKeyTable derives the keys of every accessory over w, in parallel. Accessories whose
// keys cannot be derived are reported in the returned map and left out of the table.
func BuildKeyTable(ctx context.Context, s Schedule, accessories []model.Accessory, w model.TimeWindow, cache *KeyCache, workers int) (KeyTable, map[string]error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	table := KeyTable{}
	failed := map[string]error{}
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, acc := range accessories {
		acc := acc
		g.Go(func() error {
			keys, err := s.accessoryKeys(acc, w, cache)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf("skipping accessory %s: %v", acc.ID, err)
				failed[acc.ID] = err
				return nil
			}
			for _, kp := range keys {
				if err := table.Add(acc.ID, kp); err != nil {
					failed[acc.ID] = err
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return table, failed
}

type cacheKey struct {
	secret   [sha256.Size]byte
	interval model.Interval
}

// KeyCache memoizes derived key pairs. A nil cache derives every time.
type KeyCache struct {
	entries *lru.Cache[cacheKey, model.KeyPair]
}

func NewKeyCache(size int) (*KeyCache, error) {
	entries, err := lru.New[cacheKey, model.KeyPair](size)
	if err != nil {
		return nil, fmt.Errorf("unable to create key cache: %w", err)
	}
	return &KeyCache{entries: entries}, nil
}

func (c *KeyCache) Derive(secret model.MasterSecret, interval model.Interval) (model.KeyPair, error) {
	if c == nil {
		return Derive(secret, interval)
	}
	k := cacheKey{secret: sha256.Sum256(secret), interval: interval}
	if kp, ok := c.entries.Get(k); ok {
		return kp, nil
	}
	kp, err := Derive(secret, interval)
	if err != nil {
		return kp, err
	}
	c.entries.Add(k, kp)
	return kp, nil
}

func (c *KeyCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
