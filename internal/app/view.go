package app

import (
	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/form"
)

// View is what a presentation layer needs to draw a session.
type View struct {
	SessionID       string                 `json:"sessionId"`
	Source          string                 `json:"source,omitempty"`
	Loaded          bool                   `json:"loaded"`
	Loading         bool                   `json:"loading"`
	Submitting      bool                   `json:"submitting"`
	PhaseIndex      int                    `json:"phaseIndex"`
	PhaseCount      int                    `json:"phaseCount"`
	Step            string                 `json:"step,omitempty"`
	Progress        float64                `json:"progress"`
	ProgressPercent int                    `json:"progressPercent"`
	Phase           *PhaseView             `json:"phase,omitempty"`
	Fields          []form.FieldDescriptor `json:"fields,omitempty"`
	Issues          []form.Issue           `json:"issues,omitempty"`
	Answers         domain.Answers         `json:"answers"`
	CanBack         bool                   `json:"canBack"`
	CanNext         bool                   `json:"canNext"`
	HasReport       bool                   `json:"hasReport"`
	Error           string                 `json:"error,omitempty"`
}

type PhaseView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
