package bootstrap

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/symptom-intake/internal/catalog"
	appconfig "github.com/wolfman30/symptom-intake/internal/config"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// BuildCatalog selects the rule store named by CATALOG_BACKEND and fronts
// it with the Redis cache when Redis is available.
func BuildCatalog(cfg *appconfig.Config, db *sql.DB, redisClient *redis.Client, logger *logging.Logger) (catalog.Store, error) {
	var store catalog.Store
	switch cfg.CatalogBackend {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("bootstrap: CATALOG_BACKEND=postgres requires DATABASE_URL")
		}
		store = catalog.NewPostgresRepository(db)
	case "", "memory":
		mem, err := catalog.NewMemoryStore(nil)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: seed catalog: %w", err)
		}
		store = mem
	default:
		return nil, fmt.Errorf("bootstrap: unknown catalog backend %q", cfg.CatalogBackend)
	}

	if redisClient != nil && cfg.CatalogBackend == "postgres" {
		logger.Info("catalog cache enabled", "ttl", cfg.CatalogCacheTTL)
		return catalog.NewRedisCache(store, redisClient, cfg.CatalogCacheTTL, logger), nil
	}
	return store, nil
}
