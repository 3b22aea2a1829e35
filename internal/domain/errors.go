package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a questionnaire session has not been opened.
	ErrSessionNotFound = errors.New("questionnaire session not found")
	// ErrSchemaNotLoaded is returned when an action needs a schema before one was loaded.
	ErrSchemaNotLoaded = errors.New("questionnaire schema not loaded")
	// ErrBusy is returned for navigation attempted while a load or submission is in flight.
	ErrBusy = errors.New("session busy")
	// ErrLoadSuperseded is returned to a schema load whose result was discarded by a newer load.
	ErrLoadSuperseded = errors.New("schema load superseded")
	// ErrSchemaNotFound indicates the schema source holds no document.
	ErrSchemaNotFound = errors.New("questionnaire schema not found")
	// ErrSourceNotAllowed is returned when a client asks for a schema source outside the allowed list.
	ErrSourceNotAllowed = errors.New("questionnaire source not allowed")
	// ErrIncomplete is returned by finalize when required questions are unanswered in strict mode.
	ErrIncomplete = errors.New("required questions unanswered")
)

// SchemaError reports a schema that could not be fetched or is structurally invalid.
type SchemaError struct {
	Source string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := "load schema"
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// SubmissionError reports a failed report-generation request.
// Reason carries the message returned by the report service when it sent one.
type SubmissionError struct {
	Status int
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Reason != "" && e.Status != 0:
		return fmt.Sprintf("report submission failed (%d): %s", e.Status, e.Reason)
	case e.Reason != "":
		return "report submission failed: " + e.Reason
	case e.Err != nil:
		return "report submission failed: " + e.Err.Error()
	case e.Status != 0:
		return fmt.Sprintf("report submission failed with status %d", e.Status)
	}
	return "report submission failed"
}

func (e *SubmissionError) Unwrap() error { return e.Err }
