package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

const triageYAML = `
id: triage
name: Triage
modules:
  - id: t1
    type: trigger
    order: 0
    config:
      enabled: true
      strategy: any_match
      inputTriggers:
        - id: c1
          eventType: task_created
  - id: p1
    type: prompt
    order: 1
    config:
      content: "<p>Classify: {{title}}</p>"
  - id: m1
    type: model
    order: 2
    config:
      model: gpt-4o-mini
`

func TestDecodeAgentYAML(t *testing.T) {
	a, err := DecodeAgentYAML(strings.NewReader(triageYAML))
	require.NoError(t, err)

	assert.Equal(t, "triage", a.ID)
	require.Len(t, a.Modules, 3)
	trig, ok := a.Modules[0].Config.(*domain.TriggerConfig)
	require.True(t, ok)
	assert.True(t, trig.Enabled)
	assert.Equal(t, "task_created", trig.InputTriggers[0].EventType)
	assert.Equal(t, "gpt-4o-mini", a.Model)
	assert.Contains(t, a.Prompt, "{{title}}")
}

func TestDecodeAgentYAMLErrors(t *testing.T) {
	_, err := DecodeAgentYAML(strings.NewReader("name: x\n"))
	assert.True(t, errors.Is(err, domain.ErrInvalidAgent))

	_, err = DecodeAgentYAML(strings.NewReader("id: x\nmodules:\n  - id: a\n    type: teleport\n"))
	assert.True(t, errors.Is(err, domain.ErrUnknownModuleType))
}

func TestAgentRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAgentRepo()
	a, err := DecodeAgentYAML(strings.NewReader(triageYAML))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, a))

	got, err := repo.Get(ctx, "triage")
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero())

	// правка копии не видна в хранилище
	got.Modules[1].Config.(*domain.PromptConfig).Content = "changed"
	again, err := repo.Get(ctx, "triage")
	require.NoError(t, err)
	assert.Contains(t, again.Prompt, "Classify")

	require.NoError(t, repo.SetPaused(ctx, "triage", true))
	ids, err := repo.FlaggedIDs(ctx, "paused")
	require.NoError(t, err)
	assert.Equal(t, []string{"triage"}, ids)

	_, err = repo.Get(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrAgentNotFound))
	assert.True(t, errors.Is(repo.SetDryRun(ctx, "nope", true), domain.ErrAgentNotFound))
}

func TestAgentRepoRejectsInvalid(t *testing.T) {
	err := NewAgentRepo().Save(context.Background(), &domain.Agent{ID: "x"})
	assert.True(t, errors.Is(err, domain.ErrInvalidAgent))
}
