package store

import (
	"fmt"
	"time"

	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache for audio lookups on the fallback path.
	audioCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		audioCache: cache.New(cache.Config{
			DefaultTTL:      10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxItems:        1000,
		}),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.audioCache.Close()
	return s.driver.Close()
}

func audioCacheKey(id int32) string {
	return fmt.Sprintf("audio:%d", id)
}
