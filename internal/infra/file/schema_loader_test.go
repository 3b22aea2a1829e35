package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negopro-questionnaire/internal/domain"
)

func TestLoadSchemaFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "questionnaire.yaml"), []byte(`
phases:
  - id: p1
    title: Counterpart
    questions:
      - id: q1
        question: Pick one
        answerType: single_choice
        options: [a, b]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"phases": [{"id": "p1"}]}`), 0o644))

	loader := NewSchemaLoader(dir)
	for _, src := range []string{"questionnaire.yaml", "file://" + filepath.Join(dir, "questionnaire.yaml")} {
		s, err := loader.LoadSchema(context.Background(), src)
		require.NoError(t, err, src)
		require.Len(t, s.Phases, 1)
		assert.Equal(t, []domain.Option{{Value: "a", Label: "a"}, {Value: "b", Label: "b"}}, s.Phases[0].Questions[0].Options)
	}

	_, err := loader.LoadSchema(context.Background(), "broken.json")
	var serr *domain.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "broken.json", serr.Source)

	_, err = loader.LoadSchema(context.Background(), "missing.json")
	assert.ErrorIs(t, err, domain.ErrSchemaNotFound)
}
