package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"negopro-questionnaire/internal/domain"
)

// SchemaLoader fetches a questionnaire document from a backing source (file, HTTP, Postgres).
type SchemaLoader interface {
	LoadSchema(ctx context.Context, source string) (domain.Schema, error)
}

// SchemaRepository caches schemas in Redis as JSON and falls back to a loader on cache miss.
// Documents are stored as: SET qn:schema:{source} {json} EX ttl
// A ttl <= 0 disables caching; every load goes to the loader.
type SchemaRepository struct {
	client *redis.Client
	loader SchemaLoader
	ttl    time.Duration
	log    zerolog.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewSchemaRepository(client *redis.Client, loader SchemaLoader, ttl time.Duration, log zerolog.Logger) *SchemaRepository {
	return &SchemaRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *SchemaRepository) LoadSchema(ctx context.Context, source string) (domain.Schema, error) {
	if r.ttl <= 0 {
		result, err, _ := r.sf.Do(source, func() (interface{}, error) {
			return r.loader.LoadSchema(ctx, source)
		})
		if err != nil {
			return domain.Schema{}, err
		}
		return result.(domain.Schema), nil
	}
	if s, ok := r.cached(ctx, source); ok {
		return s, nil
	}

	result, err, _ := r.sf.Do(source, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if s, ok := r.cached(ctx, source); ok {
			return s, nil
		}

		s, err := r.loader.LoadSchema(ctx, source)
		if err != nil {
			return domain.Schema{}, err
		}

		raw, err := json.Marshal(s)
		if err == nil {
			err = r.client.Set(ctx, schemaKey(source), raw, r.ttlWithJitter()).Err()
		}
		if err != nil {
			r.log.Debug().Str("source", source).Err(err).Msg("schema cache write failed")
		}
		return s, nil
	})
	if err != nil {
		return domain.Schema{}, err
	}
	return result.(domain.Schema), nil
}

// Invalidate drops the cached document for source.
func (r *SchemaRepository) Invalidate(ctx context.Context, source string) error {
	return r.client.Del(ctx, schemaKey(source)).Err()
}

func (r *SchemaRepository) cached(ctx context.Context, source string) (domain.Schema, bool) {
	raw, err := r.client.Get(ctx, schemaKey(source)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Debug().Str("source", source).Err(err).Msg("schema cache read failed")
		}
		return domain.Schema{}, false
	}
	var s domain.Schema
	if err := json.Unmarshal(raw, &s); err != nil || len(s.Phases) == 0 {
		return domain.Schema{}, false
	}
	return s, true
}

func schemaKey(source string) string {
	return "qn:schema:" + source
}

func (r *SchemaRepository) ttlWithJitter() time.Duration {
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
