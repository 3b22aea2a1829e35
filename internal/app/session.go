package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/form"
	"negopro-questionnaire/internal/payload"
)

// SchemaLoader loads questionnaire schemas (router, cache, or a single backend).
type SchemaLoader interface {
	LoadSchema(ctx context.Context, source string) (domain.Schema, error)
}

// StateStore persists the answers and phase index of a session. Load never
// fails: missing or corrupt halves come back absent.
type StateStore interface {
	Save(ctx context.Context, sessionID string, snap domain.Snapshot) error
	Load(ctx context.Context, sessionID string) domain.Snapshot
	Clear(ctx context.Context, sessionID string) error
}

// ReportClient submits a payload to the report-generation service.
type ReportClient interface {
	Generate(ctx context.Context, p domain.Payload) (domain.Report, error)
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Loader   SchemaLoader
	Store    StateStore
	Reporter ReportClient
	Engine   *form.Engine
	Builder  *payload.Builder
	Log      zerolog.Logger

	// StrictRequired makes finalize refuse while required visible questions are unanswered.
	StrictRequired bool
	// PersistTimeout bounds each background persistence write.
	PersistTimeout time.Duration
}

// Session owns the state of one questionnaire run. Every exported method is
// one discrete event and is serialized by the session lock; schema loading
// and report submission release the lock while they wait.
type Session struct {
	id   string
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	mu          sync.Mutex
	source      string
	state       domain.SessionState
	input       form.Input
	generation  uint64
	loading     bool
	submitting  bool
	reported    bool
	report      *domain.Report
	lastErr     string
	subscribers map[chan View]struct{}
	writeSeq    uint64

	pending sync.WaitGroup
	writeMu sync.Mutex
	flushed uint64
}

func NewSession(id string, deps Deps) *Session {
	return newSessionWithClock(id, deps, time.Now)
}

// NewSessionWithClock is test-only for deterministic report timestamps.
func NewSessionWithClock(id string, deps Deps, now func() time.Time) *Session {
	return newSessionWithClock(id, deps, now)
}

func newSessionWithClock(id string, deps Deps, now func() time.Time) *Session {
	if deps.PersistTimeout <= 0 {
		deps.PersistTimeout = 2 * time.Second
	}
	return &Session{
		id:          id,
		deps:        deps,
		log:         deps.Log.With().Str("session", id).Logger(),
		now:         now,
		state:       domain.SessionState{Answers: domain.Answers{}},
		input:       form.Input{},
		subscribers: make(map[chan View]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Source is the source of the loaded schema, or "" before the first successful load.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Load fetches the schema from source and restores persisted progress. A
// repeated load of the loaded source returns the cached schema without
// fetching. When a newer load starts before this one resolves, this one
// returns ErrLoadSuperseded and its result is dropped. Loading is refused
// with ErrBusy while a submission is in flight.
func (s *Session) Load(ctx context.Context, source string) (View, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return View{}, domain.ErrBusy
	}
	if s.state.Schema != nil && s.source == source {
		if s.loading {
			// A newer request for the loaded source supersedes the fetch in flight.
			s.generation++
			s.loading = false
			v := s.broadcastLocked()
			s.mu.Unlock()
			return v, nil
		}
		v := s.viewLocked()
		s.mu.Unlock()
		return v, nil
	}
	s.generation++
	gen := s.generation
	s.loading = true
	s.broadcastLocked()
	s.mu.Unlock()

	schema, err := s.deps.Loader.LoadSchema(ctx, source)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.log.Debug().Str("source", source).Msg("discarding superseded schema load")
		return View{}, domain.ErrLoadSuperseded
	}
	s.loading = false
	if err == nil && len(schema.Phases) == 0 {
		err = &domain.SchemaError{Source: source, Reason: "phases is empty"}
	}
	if err != nil {
		var serr *domain.SchemaError
		if !errors.As(err, &serr) {
			err = &domain.SchemaError{Source: source, Reason: "unreachable", Err: err}
		}
		s.lastErr = err.Error()
		s.log.Warn().Str("source", source).Err(err).Msg("schema load failed")
		s.broadcastLocked()
		return View{}, err
	}

	s.source = source
	s.state = domain.SessionState{Schema: &schema, Answers: domain.Answers{}}
	s.report, s.reported, s.lastErr = nil, false, ""
	s.restoreLocked(ctx)
	s.seedLocked()
	return s.broadcastLocked(), nil
}

func (s *Session) restoreLocked(ctx context.Context) {
	if s.deps.Store == nil {
		return
	}
	snap := s.deps.Store.Load(ctx, s.id)
	if snap.HasAnswers {
		s.state.Answers = snap.Answers.Clone()
	}
	if snap.HasPhase {
		s.state.PhaseIndex = ClampPhase(snap.PhaseIndex, s.state.PhaseCount())
	}
	if snap.HasAnswers || snap.HasPhase {
		s.log.Debug().Int("phase", s.state.PhaseIndex).Int("answers", len(s.state.Answers)).Msg("restored session state")
	}
}

// Edit applies a field edit and recollects the answers of the current phase.
func (s *Session) Edit(e form.Edit) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return View{}, err
	}
	e.Apply(s.input)
	s.collectLocked()
	s.reported = false
	s.seedLocked()
	s.persistLocked()
	return s.broadcastLocked(), nil
}

// Prefill merges the schema's sample answers over the current ones.
func (s *Session) Prefill() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return View{}, err
	}
	for id, v := range s.state.Schema.Sample.Clone() {
		s.state.Answers.Set(id, v)
	}
	s.reported = false
	s.seedLocked()
	s.persistLocked()
	return s.broadcastLocked(), nil
}

// Back collects the current phase and moves to the previous one; phase 0 stays.
func (s *Session) Back() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.navigableLocked(); err != nil {
		return View{}, err
	}
	s.collectLocked()
	s.state.PhaseIndex, _ = Back(s.state.PhaseIndex, s.state.PhaseCount())
	s.reported = false
	s.seedLocked()
	s.persistLocked()
	return s.broadcastLocked(), nil
}

// Next collects the current phase and advances. On the last phase it
// finalizes instead: the payload is posted and the report kept on success.
// A failed submission leaves answers and phase as they were.
func (s *Session) Next(ctx context.Context) (View, error) {
	s.mu.Lock()
	if err := s.navigableLocked(); err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	s.collectLocked()
	idx, step := Next(s.state.PhaseIndex, s.state.PhaseCount())
	if step != StepFinalize {
		s.state.PhaseIndex = idx
		s.seedLocked()
		s.persistLocked()
		v := s.broadcastLocked()
		s.mu.Unlock()
		return v, nil
	}
	s.persistLocked()
	defer s.mu.Unlock()
	return s.finalizeLocked(ctx)
}

// finalizeLocked is entered and left with the lock held. The lock is
// released during the POST; the submitting flag keeps navigation out.
func (s *Session) finalizeLocked(ctx context.Context) (View, error) {
	if s.deps.StrictRequired {
		if missing := form.Blocking(s.deps.Engine.Validate(s.state.Schema.Questions(), s.state.Answers)); len(missing) > 0 {
			s.lastErr = fmt.Sprintf("%d required question(s) unanswered", len(missing))
			s.broadcastLocked()
			return View{}, fmt.Errorf("%w: %s", domain.ErrIncomplete, missing[0].QuestionID)
		}
	}
	p := s.deps.Builder.Build(*s.state.Schema, s.state.Answers)
	s.submitting = true
	s.lastErr = ""
	s.broadcastLocked()

	s.mu.Unlock()
	report, err := s.deps.Reporter.Generate(ctx, p)
	s.mu.Lock()

	s.submitting = false
	if err != nil {
		s.lastErr = err.Error()
		s.log.Warn().Err(err).Msg("report submission failed")
		s.broadcastLocked()
		return View{}, err
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now()
	}
	s.report = &report
	s.reported = true
	s.log.Info().Int("answers", len(p.Questionnaire)).Msg("report generated")
	return s.broadcastLocked(), nil
}

// Reset clears answers, phase, report and the persisted keys. The loaded schema is kept.
func (s *Session) Reset() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.navigableLocked(); err != nil {
		return View{}, err
	}
	s.state.Answers = domain.Answers{}
	s.state.PhaseIndex = 0
	s.report, s.reported, s.lastErr = nil, false, ""
	s.seedLocked()
	s.clearPersistedLocked()
	return s.broadcastLocked(), nil
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Payload returns the envelope that finalize would post right now.
func (s *Session) Payload() (domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Schema == nil {
		return domain.Payload{}, domain.ErrSchemaNotLoaded
	}
	return s.deps.Builder.Build(*s.state.Schema, s.state.Answers), nil
}

// Report returns the last generated report.
func (s *Session) Report() (domain.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return domain.Report{}, false
	}
	return *s.report, true
}

// Answers returns a copy of the current answers.
func (s *Session) Answers() domain.Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Answers.Clone()
}

// Subscribe returns a channel of views, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.viewLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Wait blocks until background persistence writes have finished.
func (s *Session) Wait() {
	s.pending.Wait()
}

// Close drops all subscribers and waits for pending writes.
func (s *Session) Close() {
	s.mu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()
	s.pending.Wait()
}

func (s *Session) editableLocked() error {
	switch {
	case s.loading:
		return domain.ErrBusy
	case s.state.Schema == nil:
		return domain.ErrSchemaNotLoaded
	}
	return nil
}

func (s *Session) navigableLocked() error {
	switch {
	case s.loading || s.submitting:
		return domain.ErrBusy
	case s.state.Schema == nil:
		return domain.ErrSchemaNotLoaded
	}
	return nil
}

// collectLocked reads the input of the questions shown on the current phase.
func (s *Session) collectLocked() {
	phase, ok := s.state.Phase()
	if !ok {
		return
	}
	shown := s.deps.Engine.VisibleQuestions(phase, s.state.Answers)
	s.state.Answers = s.deps.Engine.Collect(s.state.Answers, form.FieldState{Questions: shown, Input: s.input})
}

// seedLocked rebuilds the field input from the answers of the current phase.
func (s *Session) seedLocked() {
	phase, ok := s.state.Phase()
	if !ok {
		s.input = form.Input{}
		return
	}
	s.input = form.Seed(s.deps.Engine.Render(phase, s.state.Answers))
}

func (s *Session) persistLocked() {
	if s.deps.Store == nil {
		return
	}
	snap := domain.Snapshot{
		Answers:    s.state.Answers.Clone(),
		HasAnswers: true,
		PhaseIndex: s.state.PhaseIndex,
		HasPhase:   true,
	}
	s.backgroundLocked("persist state", func(ctx context.Context) error {
		return s.deps.Store.Save(ctx, s.id, snap)
	})
}

func (s *Session) clearPersistedLocked() {
	if s.deps.Store == nil {
		return
	}
	s.backgroundLocked("clear state", func(ctx context.Context) error {
		return s.deps.Store.Clear(ctx, s.id)
	})
}

// backgroundLocked runs a persistence write without waiting for it. Writes
// carry the full state, so one that lost the race to a newer write is
// skipped. Failures are logged only.
func (s *Session) backgroundLocked(what string, fn func(ctx context.Context) error) {
	s.writeSeq++
	seq := s.writeSeq
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if seq <= s.flushed {
			return
		}
		s.flushed = seq
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.PersistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Debug().Err(err).Msg(what + " failed")
		}
	}()
}

func (s *Session) broadcastLocked() View {
	v := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- v:
		default:
			// drop the stale view so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
	return v
}

func (s *Session) viewLocked() View {
	v := View{
		SessionID:  s.id,
		Source:     s.source,
		Loaded:     s.state.Schema != nil,
		Loading:    s.loading,
		Submitting: s.submitting,
		PhaseIndex: s.state.PhaseIndex,
		PhaseCount: s.state.PhaseCount(),
		HasReport:  s.report != nil,
		Error:      s.lastErr,
		Answers:    s.state.Answers.Clone(),
	}
	v.Progress = Progress(v.PhaseIndex, v.PhaseCount, s.reported)
	v.ProgressPercent = int(math.Round(v.Progress * 100))
	phase, ok := s.state.Phase()
	if !ok {
		return v
	}
	v.Step = fmt.Sprintf("Step %d / %d", v.PhaseIndex+1, v.PhaseCount)
	v.Phase = &PhaseView{ID: phase.ID, Title: phase.Title, Description: phase.Description}
	v.Fields = s.deps.Engine.Render(phase, s.state.Answers)
	v.Issues = s.deps.Engine.Validate(phase.Questions, s.state.Answers)
	v.CanBack = v.PhaseIndex > 0 && !s.loading && !s.submitting
	v.CanNext = !s.loading && !s.submitting
	return v
}
