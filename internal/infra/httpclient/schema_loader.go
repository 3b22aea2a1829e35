// Package httpclient talks to the schema host and the report-generation service over HTTP.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/schema"
)

const maxDocumentBytes = 4 << 20

// SchemaLoader fetches questionnaire documents with GET <source>.
type SchemaLoader struct {
	httpClient *http.Client
}

func NewSchemaLoader(httpClient *http.Client) *SchemaLoader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SchemaLoader{httpClient: httpClient}
}

func (l *SchemaLoader) LoadSchema(ctx context.Context, source string) (domain.Schema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "invalid source", Err: err}
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "not found", Err: domain.ErrSchemaNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "read body", Err: err}
	}

	s, err := schema.Parse(body, schema.FormatFor(req.URL.Path, resp.Header.Get("Content-Type")))
	if err != nil {
		var serr *domain.SchemaError
		if errors.As(err, &serr) {
			serr.Source = source
		}
		return domain.Schema{}, err
	}
	return s, nil
}
