package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/form"
	"negopro-questionnaire/internal/infra/memory"
	"negopro-questionnaire/internal/payload"
	"negopro-questionnaire/internal/visibility"
)

func TestScenarioVisibleFollowUp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")

	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	_, err = s.Edit(form.Edit{Field: "q1", Values: []string{"a"}})
	require.NoError(t, err)
	v, err := s.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, v.PhaseIndex)
	require.Len(t, v.Fields, 1)
	assert.Equal(t, "q2", v.Fields[0].QuestionID)
	assert.Equal(t, form.ControlTextarea, v.Fields[0].Control)
}

func TestScenarioHiddenFollowUpLeavesPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	// answer q2 first, then go back and switch q1 so q2 becomes hidden
	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"a"}})
	_, err = s.Next(ctx)
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q2", Values: []string{"Their budget closes in March"}})
	_, err = s.Back()
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"b"}})

	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.PhaseIndex)
	assert.Empty(t, v.Fields, "q2 must be hidden")

	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.PhaseIndex, "next on the last phase must not increment")
	assert.True(t, v.HasReport)

	sent := h.reporter.last()
	assert.Equal(t, domain.Text("b"), sent.Questionnaire.Get("q1"))
	_, has := sent.Questionnaire["q2"]
	assert.False(t, has, "payload must not carry the hidden q2")
}

func TestBackAtFirstPhaseIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"a"}})
	v, err := s.Back()
	require.NoError(t, err)
	assert.Equal(t, 0, v.PhaseIndex)
	assert.False(t, v.CanBack)
	assert.Equal(t, domain.Text("a"), v.Answers.Get("q1"), "back still collects")
}

func TestProgressReachesOneOnlyAfterReport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")

	v, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Progress)
	assert.Equal(t, "Step 1 / 2", v.Step)

	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"b"}})
	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Less(t, v.Progress, 1.0)
	assert.Equal(t, 50, v.ProgressPercent)
	assert.Equal(t, "Step 2 / 2", v.Step)

	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Progress)
	assert.Equal(t, 100, v.ProgressPercent)

	report, ok := s.Report()
	require.True(t, ok)
	assert.Equal(t, "<h1>report</h1>", report.HTML)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")

	first, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	second, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	assert.Equal(t, 1, h.loader.count("two-phase"))
	assert.Equal(t, first, second)
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	release := h.loader.hold("slow")
	s := h.session("s1")

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(ctx, "slow")
		done <- err
	}()
	h.loader.waitStarted(t, "slow")

	v, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	assert.Equal(t, "two-phase", v.Source)

	close(release)
	require.ErrorIs(t, <-done, domain.ErrLoadSuperseded)

	v = s.View()
	assert.Equal(t, "two-phase", v.Source)
	assert.Equal(t, 2, v.PhaseCount)
	assert.False(t, v.Loading)
}

func TestReloadOfLoadedSourceSupersedesFetchInFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"a"}})

	release := h.loader.hold("single-required")
	done := make(chan error, 1)
	go func() {
		_, err := s.Load(ctx, "single-required")
		done <- err
	}()
	h.loader.waitStarted(t, "single-required")

	v, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	assert.Equal(t, "two-phase", v.Source)
	assert.False(t, v.Loading)

	close(release)
	require.ErrorIs(t, <-done, domain.ErrLoadSuperseded)

	v = s.View()
	assert.Equal(t, "two-phase", v.Source)
	assert.Equal(t, 2, v.PhaseCount)
	assert.True(t, v.Answers.Get("q1").Equal(domain.Text("a")))
}

func TestNavigationIsGatedWhileLoading(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	release := h.loader.hold("slow")
	s := h.session("s1")

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(ctx, "slow")
		done <- err
	}()
	h.loader.waitStarted(t, "slow")

	assert.True(t, s.View().Loading)
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = s.Back()
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = s.Edit(form.Edit{Field: "q1", Values: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	_, err = s.Back()
	assert.NoError(t, err)
}

func TestNavigationIsGatedWhileSubmitting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	release := h.reporter.hold()
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"b"}})
	_, err = s.Next(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()
	h.reporter.waitStarted(t)

	assert.True(t, s.View().Submitting)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrBusy, "no double submit")
	_, err = s.Back()
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = s.Reset()
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = s.Load(ctx, "single-required")
	assert.ErrorIs(t, err, domain.ErrBusy, "no schema swap mid-submit")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.reporter.count())

	v := s.View()
	assert.Equal(t, "two-phase", v.Source)
	assert.True(t, v.HasReport)
	assert.True(t, v.Answers.Get("q1").Equal(domain.Text("b")))
}

func TestFailedSubmissionKeepsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.reporter.fail(&domain.SubmissionError{Status: 502, Reason: "model overloaded"})
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"a"}})
	_, err = s.Next(ctx)
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q2", Values: []string{"March deadline"}})
	before := s.Answers()

	_, err = s.Next(ctx)
	var serr *domain.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "model overloaded", serr.Reason)

	v := s.View()
	assert.Equal(t, 1, v.PhaseIndex)
	assert.False(t, v.Submitting)
	assert.False(t, v.HasReport)
	assert.Contains(t, v.Error, "model overloaded")
	assert.Less(t, v.Progress, 1.0)
	assert.True(t, before.Equal(s.Answers()))

	h.reporter.fail(nil)
	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.True(t, v.HasReport)
	assert.Empty(t, v.Error)
}

func TestStrictRequiredBlocksFinalize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deps.StrictRequired = true
	s := h.session("s1")
	_, err := s.Load(ctx, "single-required")
	require.NoError(t, err)

	_, err = s.Next(ctx)
	require.ErrorIs(t, err, domain.ErrIncomplete)
	assert.Equal(t, 0, h.reporter.count())

	mustEdit(t, s, form.Edit{Field: "role", Values: []string{"Staff Engineer"}})
	_, err = s.Next(ctx)
	require.NoError(t, err)
	sent := h.reporter.last()
	assert.Equal(t, domain.Text("Staff Engineer"), sent.Questionnaire.Get("target_title"))
}

func TestSchemaFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")

	_, err := s.Load(ctx, "missing")
	var serr *domain.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.False(t, s.View().Loaded)

	_, err = s.Load(ctx, "no-phases")
	require.ErrorAs(t, err, &serr)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrSchemaNotLoaded)
}

func TestProgressRestoredAcrossSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.session("s1")
	_, err := first.Load(ctx, "two-phase")
	require.NoError(t, err)
	mustEdit(t, first, form.Edit{Field: "q1", Values: []string{"a"}})
	_, err = first.Next(ctx)
	require.NoError(t, err)
	first.Close()

	second := h.session("s1")
	v, err := second.Load(ctx, "two-phase")
	require.NoError(t, err)
	assert.Equal(t, 1, v.PhaseIndex)
	assert.Equal(t, domain.Text("a"), v.Answers.Get("q1"))
	require.Len(t, v.Fields, 1)

	other := h.session("s2")
	v, err = other.Load(ctx, "two-phase")
	require.NoError(t, err)
	assert.Equal(t, 0, v.PhaseIndex)
	assert.Empty(t, v.Answers)
}

func TestRestoredPhaseIsClamped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Save(ctx, "s1", domain.Snapshot{PhaseIndex: 9, HasPhase: true}))
	h.store.Put(domain.StateKey(domain.AnswersKey, "s1"), "not json")

	v, err := h.session("s1").Load(ctx, "two-phase")
	require.NoError(t, err)
	assert.Equal(t, 1, v.PhaseIndex)
	assert.Empty(t, v.Answers)
}

func TestResetClearsProgressKeepsSchema(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)
	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"a"}})
	_, err = s.Next(ctx)
	require.NoError(t, err)

	v, err := s.Reset()
	require.NoError(t, err)
	s.Wait()

	assert.True(t, v.Loaded)
	assert.Equal(t, 0, v.PhaseIndex)
	assert.Empty(t, v.Answers)
	snap := h.store.Load(ctx, "s1")
	assert.False(t, snap.HasAnswers)
	assert.False(t, snap.HasPhase)
}

func TestPrefillMergesSampleAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	v, err := s.Prefill()
	require.NoError(t, err)
	assert.Equal(t, domain.Text("a"), v.Answers.Get("q1"))
	assert.True(t, v.Fields[0].Choices[0].Selected)

	p, err := s.Payload()
	require.NoError(t, err)
	assert.Equal(t, domain.Text("Budget freeze"), p.Questionnaire.Get("q2"))
}

func TestSubscribersSeeEveryEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	updates, cancel := s.Subscribe()
	defer cancel()
	initial := <-updates
	assert.Equal(t, 0, initial.PhaseIndex)

	mustEdit(t, s, form.Edit{Field: "q1", Values: []string{"b"}})
	edited := <-updates
	assert.Equal(t, domain.Text("b"), edited.Answers.Get("q1"))

	_, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, (<-updates).PhaseIndex)
}

func TestPersistenceGoroutinesDrain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.session("s1")
	_, err := s.Load(ctx, "two-phase")
	require.NoError(t, err)

	for _, v := range []string{"a", "b", "a", "b"} {
		mustEdit(t, s, form.Edit{Field: "q1", Values: []string{v}})
	}
	_, err = s.Next(ctx)
	require.NoError(t, err)
	_, err = s.Back()
	require.NoError(t, err)

	s.Close()
	goleak.VerifyNone(t)

	snap := h.store.Load(ctx, "s1")
	assert.True(t, snap.HasAnswers)
	assert.Equal(t, domain.Text("b"), snap.Answers.Get("q1"))
}

type harness struct {
	deps     app.Deps
	loader   *fakeLoader
	reporter *fakeReporter
	store    *memory.StateStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	vis := visibility.NewEvaluator(zerolog.Nop())
	h := &harness{
		loader:   newFakeLoader(testSchemas()),
		reporter: &fakeReporter{started: make(chan struct{}, 4)},
		store:    memory.NewStateStore(),
	}
	h.deps = app.Deps{
		Loader:   h.loader,
		Store:    h.store,
		Reporter: h.reporter,
		Engine:   form.NewEngine(form.NewRegistry(), form.DefaultCoercionRules(), vis),
		Builder:  payload.NewBuilder(payload.DefaultAliases(), vis),
		Log:      zerolog.Nop(),
	}
	return h
}

func (h *harness) session(id string) *app.Session {
	return app.NewSessionWithClock(id, h.deps, func() time.Time {
		return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	})
}

func mustEdit(t *testing.T, s *app.Session, e form.Edit) app.View {
	t.Helper()
	v, err := s.Edit(e)
	require.NoError(t, err)
	return v
}

func testSchemas() map[string]domain.Schema {
	twoPhase := domain.Schema{
		ID: "two-phase",
		Phases: []domain.Phase{
			{ID: "p1", Title: "Counterpart", Questions: []domain.Question{{
				ID: "q1", AnswerType: domain.SingleChoice,
				Options: []domain.Option{{Value: "a", Label: "A"}, {Value: "b", Label: "B"}},
			}}},
			{ID: "p2", Title: "Leverage", Questions: []domain.Question{{
				ID: "q2", AnswerType: domain.FreeTextLimited, VisibleIf: `q1 == "a"`,
			}}},
		},
		Sample: domain.Answers{"q1": domain.Text("a"), "q2": domain.Text("Budget freeze")},
	}
	single := domain.Schema{
		ID: "single-required",
		Phases: []domain.Phase{{ID: "p1", Questions: []domain.Question{
			{ID: "role", AnswerType: domain.FreeText, Required: true},
		}}},
	}
	return map[string]domain.Schema{
		"two-phase":       twoPhase,
		"slow":            twoPhase,
		"single-required": single,
		"no-phases":       {ID: "empty"},
	}
}

type fakeLoader struct {
	schemas map[string]domain.Schema

	mu      sync.Mutex
	calls   map[string]int
	gates   map[string]chan struct{}
	started map[string]chan struct{}
}

func newFakeLoader(schemas map[string]domain.Schema) *fakeLoader {
	return &fakeLoader{
		schemas: schemas,
		calls:   make(map[string]int),
		gates:   make(map[string]chan struct{}),
		started: make(map[string]chan struct{}),
	}
}

// hold makes loads of source block until the returned channel is closed.
func (l *fakeLoader) hold(source string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	gate := make(chan struct{})
	l.gates[source] = gate
	l.started[source] = make(chan struct{}, 4)
	return gate
}

func (l *fakeLoader) waitStarted(t *testing.T, source string) {
	t.Helper()
	l.mu.Lock()
	ch := l.started[source]
	l.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("load of %s never started", source)
	}
}

func (l *fakeLoader) count(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[source]
}

func (l *fakeLoader) LoadSchema(ctx context.Context, source string) (domain.Schema, error) {
	l.mu.Lock()
	l.calls[source]++
	gate, started := l.gates[source], l.started[source]
	l.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Schema{}, ctx.Err()
		}
	}
	s, ok := l.schemas[source]
	if !ok {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "unknown", Err: domain.ErrSchemaNotFound}
	}
	return s, nil
}

type fakeReporter struct {
	started chan struct{}

	mu       sync.Mutex
	payloads []domain.Payload
	err      error
	gate     chan struct{}
}

func (r *fakeReporter) hold() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	return r.gate
}

func (r *fakeReporter) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *fakeReporter) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("submission never started")
	}
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *fakeReporter) last() domain.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.payloads) == 0 {
		return domain.Payload{}
	}
	return r.payloads[len(r.payloads)-1]
}

func (r *fakeReporter) Generate(ctx context.Context, p domain.Payload) (domain.Report, error) {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	gate, err := r.gate, r.err
	r.mu.Unlock()

	select {
	case r.started <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Report{}, err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return domain.Report{}, &domain.SubmissionError{Err: ctx.Err()}
	}
	return domain.Report{HTML: "<h1>report</h1>"}, nil
}
