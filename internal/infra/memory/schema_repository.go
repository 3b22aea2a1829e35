package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"negopro-questionnaire/internal/domain"
)

// SchemaLoader fetches a questionnaire document from a backing source (file, HTTP, Postgres).
type SchemaLoader interface {
	LoadSchema(ctx context.Context, source string) (domain.Schema, error)
}

// SchemaRepository caches loaded schemas per source with TTL to avoid repeated fetches.
// It is itself a SchemaLoader, so it can sit in front of a schema.Router.
type SchemaRepository struct {
	loader SchemaLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSchema
}

type cachedSchema struct {
	schema    domain.Schema
	expiresAt time.Time
}

func NewSchemaRepository(loader SchemaLoader, ttl time.Duration) *SchemaRepository {
	return &SchemaRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSchema),
	}
}

func (r *SchemaRepository) LoadSchema(ctx context.Context, source string) (domain.Schema, error) {
	if s, ok := r.lookup(source); ok {
		return s, nil
	}

	result, err, _ := r.sf.Do(source, func() (interface{}, error) {
		if s, ok := r.lookup(source); ok {
			return s, nil
		}
		s, err := r.loader.LoadSchema(ctx, source)
		if err != nil {
			return domain.Schema{}, err
		}
		if r.ttl > 0 {
			r.mu.Lock()
			r.cache[source] = cachedSchema{schema: s, expiresAt: r.clock().Add(r.ttlWithJitter())}
			r.mu.Unlock()
		}
		return s, nil
	})
	if err != nil {
		return domain.Schema{}, err
	}
	return result.(domain.Schema), nil
}

// Invalidate drops the cached schema for source.
func (r *SchemaRepository) Invalidate(source string) {
	r.mu.Lock()
	delete(r.cache, source)
	r.mu.Unlock()
}

func (r *SchemaRepository) lookup(source string) (domain.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[source]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Schema{}, false
	}
	return entry.schema, true
}

func (r *SchemaRepository) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticSchemaLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticSchemaLoader struct {
	schemas map[string]domain.Schema
}

func NewStaticSchemaLoader(schemas map[string]domain.Schema) *StaticSchemaLoader {
	return &StaticSchemaLoader{schemas: schemas}
}

func (l *StaticSchemaLoader) LoadSchema(_ context.Context, source string) (domain.Schema, error) {
	if s, ok := l.schemas[source]; ok {
		return s, nil
	}
	return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "unknown source", Err: domain.ErrSchemaNotFound}
}
