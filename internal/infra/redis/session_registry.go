package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/infra/memory"
)

// SessionRegistry keeps sessions in a local registry and mirrors a liveness
// marker per session into Redis so other instances and operators can see
// which ids are open. Idle eviction removes the marker too.
type SessionRegistry struct {
	*memory.SessionRegistry
	client *redis.Client
	ttl    time.Duration
}

func NewSessionRegistry(client *redis.Client, ttl, idle time.Duration) *SessionRegistry {
	r := &SessionRegistry{
		SessionRegistry: memory.NewSessionRegistry(idle),
		client:          client,
		ttl:             ttl,
	}
	r.OnEvict(func(id string) {
		_ = r.client.Del(context.Background(), sessionKey(id)).Err()
	})
	return r
}

func (r *SessionRegistry) GetOrCreate(id string, create func(id string) *app.Session) (*app.Session, bool) {
	session, created := r.SessionRegistry.GetOrCreate(id, create)
	if created {
		// best-effort liveness marker
		_ = r.client.Set(context.Background(), sessionKey(id), "1", r.ttl).Err()
	}
	return session, created
}

func (r *SessionRegistry) Delete(id string) (*app.Session, bool) {
	session, ok := r.SessionRegistry.Delete(id)
	if ok {
		_ = r.client.Del(context.Background(), sessionKey(id)).Err()
	}
	return session, ok
}

func sessionKey(id string) string {
	return "qn:session:" + id
}
