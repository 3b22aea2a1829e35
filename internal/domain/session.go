package domain

import "time"

// SessionState is the state of one questionnaire run.
type SessionState struct {
	Schema     *Schema
	Answers    Answers
	PhaseIndex int
}

// PhaseCount returns the number of phases, zero before a schema is loaded.
func (s SessionState) PhaseCount() int {
	if s.Schema == nil {
		return 0
	}
	return len(s.Schema.Phases)
}

// Phase returns the active phase.
func (s SessionState) Phase() (Phase, bool) {
	if s.Schema == nil || s.PhaseIndex < 0 || s.PhaseIndex >= len(s.Schema.Phases) {
		return Phase{}, false
	}
	return s.Schema.Phases[s.PhaseIndex], true
}

// Snapshot is the persisted part of a session. Both halves are independently optional.
type Snapshot struct {
	Answers    Answers
	HasAnswers bool
	PhaseIndex int
	HasPhase   bool
}

// Payload is the envelope posted to the report service.
type Payload struct {
	Questionnaire Answers `json:"questionnaire"`
}

// Report is a generated report as returned by the report service.
type Report struct {
	HTML        string    `json:"html"`
	GeneratedAt time.Time `json:"generatedAt"`
}
