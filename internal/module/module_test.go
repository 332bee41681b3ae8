package module

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

func chain() []domain.AgentModule {
	return []domain.AgentModule{
		{ID: "t", Type: domain.ModuleTrigger, Order: 0, Config: &domain.TriggerConfig{Enabled: true}},
		{ID: "p", Type: domain.ModulePrompt, Order: 1, Config: &domain.PromptConfig{
			Content: `<p>Task {{title}}</p><span data-placeholder data-element-id="module_t_trigger"></span>`,
		}},
		{ID: "m", Type: domain.ModuleModel, Order: 2, Config: &domain.ModelConfig{Model: "gpt-4o-mini"}},
		{ID: "x", Type: domain.ModuleJSONExtractor, Order: 3, Config: &domain.ExtractorConfig{
			Variables: []domain.ExtractorVariable{{Name: "priority", Path: "priority"}},
		}},
		{ID: "r", Type: domain.ModuleRouter, Order: 4, Config: &domain.RouterConfig{Strategy: domain.RouteAllDestinations}},
		{ID: "d", Type: domain.ModuleDestinations, Order: 5, Config: &domain.DestinationsConfig{
			Destinations: []domain.DestinationElement{{ID: "d1", TargetType: domain.TargetUIComponent, ComponentName: "board"}},
		}},
		{ID: "c", Type: domain.ModuleChannels, Order: 6, Config: &domain.ChannelsConfig{}},
	}
}

func ids(els []domain.InputElement) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.ID)
	}
	return out
}

func TestDefaultRegistry(t *testing.T) {
	reg := Default()
	assert.Equal(t, domain.AllModuleTypes, reg.Types())

	err := reg.Register(promptDefinition())
	assert.Error(t, err)
	assert.Panics(t, func() { NewRegistry().MustRegister(Definition{Type: "broken"}) })

	_, ok := reg.Get("teleport")
	assert.False(t, ok)
	_, err = reg.NewModule("teleport", 0)
	assert.True(t, errors.Is(err, domain.ErrUnknownModuleType))
}

func TestResolveInputsForPerType(t *testing.T) {
	modules := chain()
	got := ids(ResolveInputsFor(Default(), modules, len(modules)))
	want := []string{
		"module_t_trigger",
		"module_p_prompt",
		"module_m_output",
		"json_priority",
		"module_x_json",
		"module_r_route",
		"module_d_dest_d1",
		"module_d_dispatch",
		"module_c_channels",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveInputsForNoLeak(t *testing.T) {
	modules := chain()
	reg := Default()

	assert.Empty(t, ResolveInputsFor(reg, modules, 0))
	// модель видит только выходы триггера и промпта
	if diff := cmp.Diff([]string{"module_t_trigger", "module_p_prompt"}, ids(ResolveInputsFor(reg, modules, 2))); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// индекс за концом списка не паникует
	assert.Len(t, ResolveInputsFor(reg, modules, 100), 9)
}

func TestResolveInputsForConditionalOutputs(t *testing.T) {
	modules := []domain.AgentModule{
		{ID: "t", Type: domain.ModuleTrigger, Config: &domain.TriggerConfig{Enabled: false}},
		{ID: "p", Type: domain.ModulePrompt, Config: &domain.PromptConfig{Content: "  "}},
		{ID: "m", Type: domain.ModuleModel, Config: &domain.ModelConfig{}},
	}
	assert.Empty(t, ResolveInputsFor(Default(), modules, 3))
}

func TestAvailableInputsStaticPlaceholders(t *testing.T) {
	modules := chain()
	got := ids(AvailableInputs(Default(), modules, 2))
	// module_t_trigger в шаблоне — ссылка на выход, а не статический вход
	assert.Equal(t, []string{"title", "module_t_trigger", "module_p_prompt"}, got)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	modules := chain()
	before := ids(ResolveInputsFor(Default(), modules, len(modules)))

	out, err := Apply(modules,
		AddModule(Default(), domain.ModuleModel),
		UpdateConfig("m", &domain.ModelConfig{Model: "other"}),
		RemoveModule("c"),
	)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", modules[2].Config.(*domain.ModelConfig).Model)
	assert.Len(t, modules, 7)
	assert.Equal(t, before, ids(ResolveInputsFor(Default(), modules, len(modules))))

	require.Len(t, out, 7)
	assert.Equal(t, "other", out[2].Config.(*domain.ModelConfig).Model)
	added := out[6]
	assert.Equal(t, domain.ModuleModel, added.Type)
	assert.Equal(t, 7, added.Order)
	assert.NotEmpty(t, added.ID)
}

func TestEditErrors(t *testing.T) {
	modules := chain()

	_, err := Apply(modules, RemoveModule("nope"))
	assert.True(t, errors.Is(err, domain.ErrModuleNotFound))

	_, err = Apply(modules, UpdateConfig("m", &domain.PromptConfig{Content: "x"}))
	assert.True(t, errors.Is(err, domain.ErrInvalidAgent))

	_, err = Apply(modules, AddModule(Default(), "teleport"))
	assert.True(t, errors.Is(err, domain.ErrUnknownModuleType))
}

func TestMoveModule(t *testing.T) {
	out, err := Apply(chain(), MoveModule("c", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "t", "p", "m", "x", "r", "d"}, moduleIDs(out))
	for i, m := range out {
		assert.Equal(t, i, m.Order)
	}

	out, err = Apply(chain(), MoveModule("t", 99))
	require.NoError(t, err)
	assert.Equal(t, "t", out[len(out)-1].ID)
}

func moduleIDs(modules []domain.AgentModule) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		out = append(out, m.ID)
	}
	return out
}

func TestCheckReportsModuleIssues(t *testing.T) {
	a := &domain.Agent{ID: "a", Modules: chain()}
	a.Modules[2].Config = &domain.ModelConfig{}
	a.Modules[5].Config = &domain.DestinationsConfig{
		Destinations: []domain.DestinationElement{{ID: "d1", TargetType: domain.TargetDatabase}},
	}

	issues, err := Default().Check(a)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "m", issues[0].ModuleID)
	assert.Equal(t, "d", issues[1].ModuleID)

	_, err = Default().Check(&domain.Agent{ID: "b"})
	assert.True(t, errors.Is(err, domain.ErrInvalidAgent))
}

func TestPreflightLeavesElementChecksToRunTime(t *testing.T) {
	reg := Default()
	dests := domain.AgentModule{ID: "d", Type: domain.ModuleDestinations, Config: &domain.DestinationsConfig{
		Destinations: []domain.DestinationElement{{ID: "d1", TargetType: domain.TargetDatabase}},
	}}
	require.Error(t, reg.Validate(dests))
	assert.NoError(t, reg.Preflight(dests))

	chans := domain.AgentModule{ID: "c", Type: domain.ModuleChannels, Config: &domain.ChannelsConfig{
		Channels: []domain.ChannelConfig{{ID: "w", Type: domain.ChannelWebhook}},
	}}
	require.Error(t, reg.Validate(chans))
	assert.NoError(t, reg.Preflight(chans))

	// остальные типы проверяются целиком
	model := domain.AgentModule{ID: "m", Type: domain.ModuleModel, Config: &domain.ModelConfig{}}
	assert.Error(t, reg.Preflight(model))

	mismatch := domain.AgentModule{ID: "r", Type: domain.ModuleRouter, Config: &domain.ChannelsConfig{}}
	assert.ErrorContains(t, reg.Preflight(mismatch), "config does not match type")

	_, ok := reg.Get("nope")
	assert.False(t, ok)
	assert.True(t, errors.Is(reg.Preflight(domain.AgentModule{ID: "x", Type: "nope"}), domain.ErrUnknownModuleType))
}
