package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

func TestExtractNestedPath(t *testing.T) {
	res, err := Extract(
		[]domain.ExtractorVariable{{Name: "title", Path: "data.title"}},
		`{"data":{"title":"Bug report"}}`,
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Bug report"}, res.Values)
	assert.Empty(t, res.Missing)
}

func TestExtractMissingPathIsPerVariable(t *testing.T) {
	res, err := Extract([]domain.ExtractorVariable{
		{Name: "title", Path: "data.title"},
		{Name: "owner", Path: "data.owner.name"},
		{Name: "first_tag", Path: "data.tags.0"},
		{Name: "score"},
	}, `{"data":{"title":"T","tags":["ui","auth"]},"score":7}`)
	require.NoError(t, err)

	assert.Equal(t, "T", res.Values["title"])
	assert.Equal(t, "ui", res.Values["first_tag"])
	assert.Equal(t, json.Number("7"), res.Values["score"])

	v, ok := res.Values["owner"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, []string{"owner"}, res.Missing)
}

func TestExtractRejectsInvalidJSON(t *testing.T) {
	for _, src := range []string{"", "not json", "```json\n{}\n```", `{"a":1} trailing`} {
		_, err := Extract([]domain.ExtractorVariable{{Name: "a", Path: "a"}}, src)
		assert.ErrorIs(t, err, ErrInvalidJSON, src)
	}
}
