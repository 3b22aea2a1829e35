package schema

import (
	"context"
	"strings"

	"negopro-questionnaire/internal/domain"
)

// Loader fetches a schema from a backing source (file, HTTP, database).
type Loader interface {
	LoadSchema(ctx context.Context, source string) (domain.Schema, error)
}

// Router dispatches a source string to a loader by its scheme. Sources
// without a registered scheme go to the fallback loader.
type Router struct {
	loaders  map[string]Loader
	fallback Loader
}

func NewRouter(fallback Loader) *Router {
	return &Router{loaders: make(map[string]Loader), fallback: fallback}
}

// Handle registers l for sources starting with "<scheme>:".
func (r *Router) Handle(scheme string, l Loader) {
	r.loaders[strings.ToLower(scheme)] = l
}

func (r *Router) LoadSchema(ctx context.Context, source string) (domain.Schema, error) {
	scheme := ""
	if i := strings.Index(source, ":"); i > 0 {
		scheme = strings.ToLower(source[:i])
	}
	l, ok := r.loaders[scheme]
	if !ok {
		l = r.fallback
	}
	if l == nil {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "no loader for source"}
	}
	return l.LoadSchema(ctx, source)
}

// Strip removes the scheme prefix from source, e.g. "db:negotiation" -> "negotiation".
func Strip(source, scheme string) string {
	prefix := scheme + ":"
	if len(source) >= len(prefix) && strings.EqualFold(source[:len(prefix)], prefix) {
		return strings.TrimPrefix(source[len(prefix):], "//")
	}
	return source
}
