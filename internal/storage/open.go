package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/retina-api/internal/config"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/metrics"
)

// Opened is the configured mirror plus the raw redis client when the
// redis backend was chosen, so the relay can reuse the connection.
type Opened struct {
	KV          KV
	RedisClient *redis.Client
}

// Open builds the backend named in cfg.Storage, wrapped with a circuit
// breaker for remote backends and with metrics.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Opened, error) {
	var (
		kv     KV
		client *redis.Client
	)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		kv = NewMemory()
	case config.BackendRedis:
		r, err := NewRedis(ctx, cfg.Redis, cfg.Storage.KeyPrefix)
		if err != nil {
			return nil, err
		}
		kv, client = r, r.Client()
	case config.BackendPostgres:
		db, err := NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		kv = pg
	case config.BackendMongo:
		mc, err := NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		kv = NewMongo(mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.Breaker.Enabled && cfg.Storage.Backend != config.BackendMemory {
		kv = NewBreaker(kv, cfg.Storage.Breaker, log.With("storage").Zerolog())
	}

	log.Info("Persisted mirror opened", "backend", kv.Backend())
	return &Opened{KV: NewInstrumented(kv, m), RedisClient: client}, nil
}
