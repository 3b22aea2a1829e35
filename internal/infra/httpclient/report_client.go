package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/domain"
)

// ReportClient posts payloads to the report-generation service. There is no retry:
// a failed submission is returned to the caller to resubmit.
type ReportClient struct {
	endpoint   string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewReportClient(endpoint string, timeout time.Duration, log zerolog.Logger) *ReportClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ReportClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// reportResponse covers both reply shapes of the service: the report inline
// as html, or ok plus a report_url to fetch it from.
type reportResponse struct {
	OK        *bool  `json:"ok"`
	HTML      string `json:"html"`
	ReportURL string `json:"report_url"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
}

func (c *ReportClient) Generate(ctx context.Context, p domain.Payload) (domain.Report, error) {
	if p.Questionnaire == nil {
		p.Questionnaire = domain.Answers{}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Reason: "encode payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Reason: "invalid endpoint", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("endpoint", c.endpoint).Int("answers", len(p.Questionnaire)).Msg("posting questionnaire")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Err: err}
	}

	var out reportResponse
	decodeErr := json.Unmarshal(raw, &out)
	reason := strings.TrimSpace(out.Reason)
	if reason == "" {
		reason = strings.TrimSpace(out.Error)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Reason: reason}
	}
	if decodeErr != nil {
		return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Reason: "malformed response", Err: decodeErr}
	}
	if out.OK != nil && !*out.OK {
		if reason == "" {
			reason = "report service declined the request"
		}
		return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Reason: reason}
	}
	if out.HTML != "" {
		return domain.Report{HTML: out.HTML}, nil
	}
	if out.ReportURL != "" {
		return c.fetchReport(ctx, out.ReportURL)
	}
	return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Reason: "response carries no report"}
}

func (c *ReportClient) fetchReport(ctx context.Context, ref string) (domain.Report, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Reason: "invalid endpoint", Err: err}
	}
	target, err := base.Parse(ref)
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Reason: "invalid report_url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Reason: "invalid report_url", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Reason: "cannot load report", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Reason: fmt.Sprintf("cannot load report: %s", http.StatusText(resp.StatusCode))}
	}
	html, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return domain.Report{}, &domain.SubmissionError{Status: resp.StatusCode, Reason: "cannot load report", Err: err}
	}
	return domain.Report{HTML: string(html)}, nil
}
