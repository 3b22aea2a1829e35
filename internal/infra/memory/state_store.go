package memory

import (
	"context"
	"sync"

	"negopro-questionnaire/internal/domain"
)

// StateStore keeps persisted session state in process memory, encoded the
// same way the durable stores encode it.
type StateStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewStateStore() *StateStore {
	return &StateStore{keys: make(map[string]string)}
}

func (s *StateStore) Save(_ context.Context, sessionID string, snap domain.Snapshot) error {
	var answers string
	if snap.HasAnswers {
		raw, err := domain.EncodeAnswers(snap.Answers)
		if err != nil {
			return err
		}
		answers = raw
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.HasAnswers {
		s.keys[domain.StateKey(domain.AnswersKey, sessionID)] = answers
	}
	if snap.HasPhase {
		s.keys[domain.StateKey(domain.PhaseKey, sessionID)] = domain.EncodePhase(snap.PhaseIndex)
	}
	return nil
}

func (s *StateStore) Load(_ context.Context, sessionID string) domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap domain.Snapshot
	if raw, ok := s.keys[domain.StateKey(domain.AnswersKey, sessionID)]; ok {
		snap.Answers, snap.HasAnswers = domain.DecodeAnswers(raw)
	}
	if raw, ok := s.keys[domain.StateKey(domain.PhaseKey, sessionID)]; ok {
		snap.PhaseIndex, snap.HasPhase = domain.DecodePhase(raw)
	}
	return snap
}

func (s *StateStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, domain.StateKey(domain.AnswersKey, sessionID))
	delete(s.keys, domain.StateKey(domain.PhaseKey, sessionID))
	return nil
}

// Put stores a raw value under key, bypassing encoding.
func (s *StateStore) Put(key, raw string) {
	s.mu.Lock()
	s.keys[key] = raw
	s.mu.Unlock()
}
