package http

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/form"
	"negopro-questionnaire/internal/infra/memory"
	"negopro-questionnaire/internal/payload"
	"negopro-questionnaire/internal/visibility"
)

type stubReporter struct {
	mu   sync.Mutex
	err  error
	last domain.Payload
}

func (r *stubReporter) Generate(_ context.Context, p domain.Payload) (domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = p
	if r.err != nil {
		return domain.Report{}, r.err
	}
	return domain.Report{HTML: "<h1>Negotiation plan</h1>"}, nil
}

func (r *stubReporter) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func newTestService(t *testing.T) (*app.QuestionnaireService, *stubReporter) {
	t.Helper()
	vis := visibility.NewEvaluator(zerolog.Nop())
	reporter := &stubReporter{}
	deps := app.Deps{
		Loader:   memory.NewStaticSchemaLoader(sampleSchemas()),
		Store:    memory.NewStateStore(),
		Reporter: reporter,
		Engine:   form.NewEngine(form.NewRegistry(), form.DefaultCoercionRules(), vis),
		Builder:  payload.NewBuilder(payload.DefaultAliases(), vis),
		Log:      zerolog.Nop(),
	}
	return app.NewQuestionnaireService(memory.NewSessionRegistry(0), deps, "negotiation", "nowhere", "salary"), reporter
}

func sampleSchemas() map[string]domain.Schema {
	return map[string]domain.Schema{
		"negotiation": {
			ID: "negotiation",
			Phases: []domain.Phase{
				{ID: "p1", Title: "Counterpart", Questions: []domain.Question{{
					ID: "q1", Prompt: "Who holds the power?", AnswerType: domain.SingleChoice,
					Options: []domain.Option{{Value: "a", Label: "They do"}, {Value: "b", Label: "I do"}},
				}}},
				{ID: "p2", Title: "Leverage", Questions: []domain.Question{{
					ID: "q2", Prompt: "Main leverage", AnswerType: domain.FreeTextLimited, VisibleIf: `q1 == "a"`,
				}}},
			},
			Sample: domain.Answers{"q1": domain.Text("a"), "q2": domain.Text("Budget freeze")},
		},
		"salary": {
			ID: "salary",
			Phases: []domain.Phase{
				{ID: "p1", Title: "Package", Questions: []domain.Question{{
					ID: "current_salary", Prompt: "Current salary", AnswerType: domain.FreeText,
				}}},
			},
		},
	}
}
