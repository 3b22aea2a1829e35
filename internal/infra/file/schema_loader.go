// Package file loads questionnaire documents from the local file system.
package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/schema"
)

// SchemaLoader reads "file://<path>" sources and bare paths. Relative paths
// resolve against root.
type SchemaLoader struct {
	root string
}

func NewSchemaLoader(root string) *SchemaLoader {
	return &SchemaLoader{root: root}
}

func (l *SchemaLoader) LoadSchema(_ context.Context, source string) (domain.Schema, error) {
	path := schema.Strip(source, "file")
	if !filepath.IsAbs(path) && l.root != "" {
		path = filepath.Join(l.root, path)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "no such file", Err: domain.ErrSchemaNotFound}
	}
	if err != nil {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "unreadable", Err: err}
	}
	s, err := schema.Parse(data, schema.FormatFor(path, ""))
	if err != nil {
		var serr *domain.SchemaError
		if errors.As(err, &serr) {
			serr.Source = source
		}
		return domain.Schema{}, err
	}
	return s, nil
}
