package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/domain"
)

// StateStore persists session progress in two independent keys:
//
//	np_qn_answers_v1:{session}  JSON answers
//	np_qn_step_v1:{session}     phase index
//
// Both keys are refreshed with the store TTL on every write.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewStateStore(client *redis.Client, ttl time.Duration, log zerolog.Logger) *StateStore {
	return &StateStore{client: client, ttl: ttl, log: log}
}

func (s *StateStore) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	if !snap.HasAnswers && !snap.HasPhase {
		return nil
	}
	pipe := s.client.TxPipeline()
	if snap.HasAnswers {
		raw, err := domain.EncodeAnswers(snap.Answers)
		if err != nil {
			return err
		}
		pipe.Set(ctx, domain.StateKey(domain.AnswersKey, sessionID), raw, s.ttl)
	}
	if snap.HasPhase {
		pipe.Set(ctx, domain.StateKey(domain.PhaseKey, sessionID), domain.EncodePhase(snap.PhaseIndex), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *StateStore) Load(ctx context.Context, sessionID string) domain.Snapshot {
	answersKey := domain.StateKey(domain.AnswersKey, sessionID)
	phaseKey := domain.StateKey(domain.PhaseKey, sessionID)

	vals, err := s.client.MGet(ctx, answersKey, phaseKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Debug().Str("session", sessionID).Err(err).Msg("state read failed")
		}
		return domain.Snapshot{}
	}

	var snap domain.Snapshot
	if raw, ok := vals[0].(string); ok {
		snap.Answers, snap.HasAnswers = domain.DecodeAnswers(raw)
	}
	if raw, ok := vals[1].(string); ok {
		snap.PhaseIndex, snap.HasPhase = domain.DecodePhase(raw)
	}
	return snap
}

func (s *StateStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx,
		domain.StateKey(domain.AnswersKey, sessionID),
		domain.StateKey(domain.PhaseKey, sessionID),
	).Err()
}
