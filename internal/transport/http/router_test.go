package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/domain"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) app.View {
	t.Helper()
	var v app.View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, rec.Body.String())
	}
	return v
}

func TestRESTQuestionnaireFlow(t *testing.T) {
	service, reporter := newTestService(t)
	h := NewRouter(service, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/v1/sessions", `{"id":"s1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	v := decodeView(t, rec)
	if v.SessionID != "s1" || v.PhaseCount != 2 || v.PhaseIndex != 0 {
		t.Fatalf("unexpected view after create: %+v", v)
	}

	if rec := do(t, h, http.MethodPost, "/v1/sessions/s1/fields", `{"field":"q1","values":["a"]}`); rec.Code != http.StatusOK {
		t.Fatalf("edit q1: status %d body %s", rec.Code, rec.Body.String())
	}
	v = decodeView(t, do(t, h, http.MethodPost, "/v1/sessions/s1/next", ""))
	if v.PhaseIndex != 1 || len(v.Fields) != 1 || v.Fields[0].QuestionID != "q2" {
		t.Fatalf("expected q2 on phase 2, got %+v", v)
	}

	do(t, h, http.MethodPost, "/v1/sessions/s1/fields", `{"field":"q2","values":["Budget freeze"]}`)

	rec = do(t, h, http.MethodGet, "/v1/sessions/s1/payload", "")
	var p struct {
		Questionnaire map[string]any `json:"questionnaire"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Questionnaire["q1"] != "a" || p.Questionnaire["q2"] != "Budget freeze" {
		t.Fatalf("unexpected payload %v", p.Questionnaire)
	}

	if rec := do(t, h, http.MethodGet, "/v1/sessions/s1/report", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("report before submit: expected 404, got %d", rec.Code)
	}

	v = decodeView(t, do(t, h, http.MethodPost, "/v1/sessions/s1/next", ""))
	if !v.HasReport || v.Progress != 1 {
		t.Fatalf("expected report after final next, got %+v", v)
	}
	if got := reporter.last.Questionnaire.Get("q2"); !got.Equal(domain.Text("Budget freeze")) {
		t.Fatalf("report service saw q2=%v", got)
	}

	rec = do(t, h, http.MethodGet, "/v1/sessions/s1/report", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "<h1>Negotiation plan</h1>" {
		t.Fatalf("report: status %d body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("report content type %q", ct)
	}

	if rec := do(t, h, http.MethodDelete, "/v1/sessions/s1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/sessions/s1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", rec.Code)
	}
}

func TestRESTToggleBackAndPrefill(t *testing.T) {
	service, _ := newTestService(t)
	h := NewRouter(service, zerolog.Nop())

	v := decodeView(t, do(t, h, http.MethodPost, "/v1/sessions", ""))
	if v.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	base := "/v1/sessions/" + v.SessionID

	v = decodeView(t, do(t, h, http.MethodPost, base+"/prefill", ""))
	if !v.Answers.Get("q2").Equal(domain.Text("Budget freeze")) {
		t.Fatalf("prefill did not merge sample answers: %v", v.Answers)
	}

	v = decodeView(t, do(t, h, http.MethodPost, base+"/back", ""))
	if v.PhaseIndex != 0 {
		t.Fatalf("back at first phase moved to %d", v.PhaseIndex)
	}

	v = decodeView(t, do(t, h, http.MethodPost, base+"/reset", ""))
	if len(v.Answers) != 0 || v.PhaseIndex != 0 {
		t.Fatalf("reset left state behind: %+v", v)
	}
}

func TestRESTErrors(t *testing.T) {
	service, reporter := newTestService(t)
	h := NewRouter(service, zerolog.Nop())

	if rec := do(t, h, http.MethodGet, "/v1/sessions/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/sessions", `{"id":"x","source":"nowhere"}`); rec.Code != http.StatusBadGateway {
		t.Fatalf("unknown source: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/v1/sessions", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status %d", rec.Code)
	}

	do(t, h, http.MethodPost, "/v1/sessions", `{"id":"s2"}`)
	if rec := do(t, h, http.MethodPost, "/v1/sessions/s2/fields", `{"values":["a"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("edit without field: status %d", rec.Code)
	}

	reporter.fail(&domain.SubmissionError{Status: 500, Reason: "model overloaded"})
	do(t, h, http.MethodPost, "/v1/sessions/s2/fields", `{"field":"q1","values":["b"]}`)
	do(t, h, http.MethodPost, "/v1/sessions/s2/next", "")
	rec := do(t, h, http.MethodPost, "/v1/sessions/s2/next", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("failed submission: status %d body %s", rec.Code, rec.Body.String())
	}
	var body errorPayload
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Reason != "model overloaded" {
		t.Fatalf("expected submission reason, got %+v", body)
	}

	v := decodeView(t, do(t, h, http.MethodGet, "/v1/sessions/s2", ""))
	if v.PhaseIndex != 1 || !v.Answers.Get("q1").Equal(domain.Text("b")) {
		t.Fatalf("state lost after failed submission: %+v", v)
	}
}

func TestRESTRejectsSourcesOutsideAllowList(t *testing.T) {
	service, _ := newTestService(t)
	h := NewRouter(service, zerolog.Nop())

	for _, source := range []string{"/etc/passwd", "file:../secrets.json", "http://169.254.169.254/latest"} {
		rec := do(t, h, http.MethodPost, "/v1/sessions", fmt.Sprintf(`{"id":"x","source":%q}`, source))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("source %q: status %d body %s", source, rec.Code, rec.Body.String())
		}
	}
	if rec := do(t, h, http.MethodPost, "/v1/sessions", `{"id":"ok","source":"salary"}`); rec.Code != http.StatusOK {
		t.Fatalf("allowed source: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/v1/sessions", `{"id":"ok","source":"/etc/passwd"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("reload with disallowed source: status %d", rec.Code)
	}
	v := decodeView(t, do(t, h, http.MethodGet, "/v1/sessions/ok", ""))
	if v.Source != "salary" {
		t.Fatalf("refused source must not replace the loaded one: %+v", v)
	}
}

func TestRESTNonDecimalAmountsStayEncodable(t *testing.T) {
	service, _ := newTestService(t)
	h := NewRouter(service, zerolog.Nop())
	do(t, h, http.MethodPost, "/v1/sessions", `{"id":"pay","source":"salary"}`)

	for _, raw := range []string{"inf", "NaN", "0x10"} {
		rec := do(t, h, http.MethodPost, "/v1/sessions/pay/fields", fmt.Sprintf(`{"field":"current_salary","values":[%q]}`, raw))
		if rec.Code != http.StatusOK {
			t.Fatalf("edit %q: status %d body %s", raw, rec.Code, rec.Body.String())
		}
		v := decodeView(t, do(t, h, http.MethodGet, "/v1/sessions/pay", ""))
		if !v.Answers.Get("current_salary").Equal(domain.Text(raw)) {
			t.Fatalf("edit %q: expected raw text, got %+v", raw, v.Answers)
		}
		rec = do(t, h, http.MethodGet, "/v1/sessions/pay/payload", "")
		if rec.Code != http.StatusOK || !json.Valid(rec.Body.Bytes()) {
			t.Fatalf("payload %q: status %d body %q", raw, rec.Code, rec.Body.String())
		}
	}
}

func TestWriteJSONReportsEncodeFailures(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"amount": math.Inf(1)})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	var body errorPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Message == "" {
		t.Fatalf("expected an error body, got %q (%v)", rec.Body.String(), err)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrBusy, http.StatusConflict},
		{domain.ErrSchemaNotLoaded, http.StatusConflict},
		{domain.ErrLoadSuperseded, http.StatusConflict},
		{domain.ErrSourceNotAllowed, http.StatusForbidden},
		{fmt.Errorf("%w: role", domain.ErrIncomplete), http.StatusUnprocessableEntity},
		{&domain.SchemaError{Reason: "unreachable"}, http.StatusBadGateway},
		{&domain.SubmissionError{Reason: "declined"}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	service, _ := newTestService(t)
	rec := do(t, NewRouter(service, zerolog.Nop()), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}
