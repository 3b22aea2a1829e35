package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Base names of the two persisted keys. Stores scope them per session with StateKey.
const (
	AnswersKey = "np_qn_answers_v1"
	PhaseKey   = "np_qn_step_v1"
)

// StateKey scopes a persisted key to one session.
func StateKey(base, sessionID string) string {
	return base + ":" + sessionID
}

// EncodeAnswers serializes answers for storage.
func EncodeAnswers(a Answers) (string, error) {
	if a == nil {
		a = Answers{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeAnswers parses stored answers. Corrupt data reads as absent.
func DecodeAnswers(raw string) (Answers, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	var a Answers
	if err := json.Unmarshal([]byte(raw), &a); err != nil || a == nil {
		return nil, false
	}
	return a, true
}

func EncodePhase(index int) string { return strconv.Itoa(index) }

// DecodePhase parses a stored phase index. Negative or non-numeric values read as absent.
func DecodePhase(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
