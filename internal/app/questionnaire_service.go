package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/form"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(id string, create func(id string) *Session) (*Session, bool)
	Get(id string) (*Session, bool)
	Delete(id string) (*Session, bool)
}

// QuestionnaireService contains the questionnaire use cases.
type QuestionnaireService struct {
	sessions      SessionRepository
	deps          Deps
	defaultSource string
	allowed       []string
}

// NewQuestionnaireService serves sessions whose schema comes from defaultSource
// or one of allowed. An allowed entry ending in "*" matches by prefix.
func NewQuestionnaireService(sessions SessionRepository, deps Deps, defaultSource string, allowed ...string) *QuestionnaireService {
	return &QuestionnaireService{sessions: sessions, deps: deps, defaultSource: defaultSource, allowed: allowed}
}

// SourceAllowed reports whether a client may open a session on source.
func (s *QuestionnaireService) SourceAllowed(source string) bool {
	if source == "" || source == s.defaultSource {
		return true
	}
	for _, entry := range s.allowed {
		if prefix, ok := strings.CutSuffix(entry, "*"); ok {
			if strings.HasPrefix(source, prefix) && !strings.Contains(source, "..") {
				return true
			}
			continue
		}
		if source == entry {
			return true
		}
	}
	return false
}

// Open returns the session with id, creating it and loading its schema when
// needed. Sources outside the allowed list are refused with
// ErrSourceNotAllowed. An empty id allocates a new one. An empty source keeps
// the source the session already has, or else uses the default. Persisted
// progress for a known id is restored on load.
func (s *QuestionnaireService) Open(ctx context.Context, id, source string) (View, error) {
	if !s.SourceAllowed(source) {
		return View{}, domain.ErrSourceNotAllowed
	}
	if id == "" {
		id = uuid.NewString()
	}
	session, _ := s.sessions.GetOrCreate(id, func(id string) *Session {
		return NewSession(id, s.deps)
	})
	if source == "" {
		source = session.Source()
	}
	if source == "" {
		source = s.defaultSource
	}
	return session.Load(ctx, source)
}

func (s *QuestionnaireService) Session(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *QuestionnaireService) View(id string) (View, error) {
	session, err := s.Session(id)
	if err != nil {
		return View{}, err
	}
	return session.View(), nil
}

func (s *QuestionnaireService) Edit(id string, e form.Edit) (View, error) {
	session, err := s.Session(id)
	if err != nil {
		return View{}, err
	}
	return session.Edit(e)
}

func (s *QuestionnaireService) Next(ctx context.Context, id string) (View, error) {
	session, err := s.Session(id)
	if err != nil {
		return View{}, err
	}
	return session.Next(ctx)
}

func (s *QuestionnaireService) Back(id string) (View, error) {
	session, err := s.Session(id)
	if err != nil {
		return View{}, err
	}
	return session.Back()
}

func (s *QuestionnaireService) Reset(id string) (View, error) {
	session, err := s.Session(id)
	if err != nil {
		return View{}, err
	}
	return session.Reset()
}

func (s *QuestionnaireService) Prefill(id string) (View, error) {
	session, err := s.Session(id)
	if err != nil {
		return View{}, err
	}
	return session.Prefill()
}

func (s *QuestionnaireService) Payload(id string) (domain.Payload, error) {
	session, err := s.Session(id)
	if err != nil {
		return domain.Payload{}, err
	}
	return session.Payload()
}

func (s *QuestionnaireService) Report(id string) (domain.Report, bool, error) {
	session, err := s.Session(id)
	if err != nil {
		return domain.Report{}, false, err
	}
	report, ok := session.Report()
	return report, ok, nil
}

// Subscribe returns a channel that receives view updates for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuestionnaireService) Subscribe(id string) (<-chan View, func(), error) {
	session, err := s.Session(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Close tears down the in-memory session. Persisted state is kept.
func (s *QuestionnaireService) Close(id string) error {
	session, ok := s.sessions.Delete(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Close()
	return nil
}
