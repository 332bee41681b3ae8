package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

type recordCall struct {
	table, column, recordID string
	value                   any
}

type fakeRecords struct {
	calls []recordCall
	err   error
}

func (f *fakeRecords) UpdateColumn(_ context.Context, table, column, recordID string, value any) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, recordCall{table, column, recordID, value})
	return nil
}

type fakeEvents struct {
	events []UIEvent
	err    error
}

func (f *fakeEvents) Publish(_ context.Context, ev UIEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeAgents struct {
	invoked []string
	chains  [][]string
}

func (f *fakeAgents) InvokeAgent(_ context.Context, agentID string, _ map[string]any, rc RunContext) error {
	f.invoked = append(f.invoked, agentID)
	f.chains = append(f.chains, rc.Chain)
	return nil
}

func dbDest(id, recordID string) domain.DestinationElement {
	return domain.DestinationElement{
		ID: id, TargetType: domain.TargetDatabase,
		TargetTable: "tasks", TargetColumn: "summary", TargetRecordID: recordID,
	}
}

func TestDispatchIndependentResults(t *testing.T) {
	records := &fakeRecords{}
	d := New(records, nil, nil, nil)

	rc := RunContext{AgentID: "a1", LatestOutput: "summary text"}
	results := d.Dispatch(context.Background(), []domain.DestinationElement{
		dbDest("d1", "rec-1"),
		dbDest("d2", ""),
	}, nil, rc)

	require.Len(t, results, 2)
	assert.Equal(t, domain.StepSuccess, results[0].Status)
	assert.Equal(t, domain.StepError, results[1].Status)
	assert.Contains(t, results[1].Error, domain.ErrMissingRecordID.Error())

	require.Len(t, records.calls, 1)
	assert.Equal(t, recordCall{"tasks", "summary", "rec-1", "summary text"}, records.calls[0])
}

func TestDispatchOneFailureDoesNotStopOthers(t *testing.T) {
	events := &fakeEvents{}
	records := &fakeRecords{err: errors.New("db down")}
	agents := &fakeAgents{}
	d := New(records, events, agents, nil)

	bound := domain.NewBindings()
	bound.Bind(domain.InputElement{ID: "json_title", Type: "json_title"}, "Fix login")

	selected := []domain.DestinationElement{
		dbDest("d1", "rec-1"),
		{ID: "d2", TargetType: domain.TargetUIComponent, ComponentName: "board", EventType: "refresh", SourceInputID: "json_title"},
		{ID: "d3", TargetType: domain.TargetAgent, TargetAgentID: "a2"},
		{ID: "d4", TargetType: domain.TargetUIComponent, ComponentName: "board", SourceInputID: "json_missing"},
	}
	rc := RunContext{AgentID: "a1", RunID: "r1", SourceRecordID: "task-9", Chain: []string{"a1"}}
	results := d.Dispatch(context.Background(), selected, bound, rc)

	require.Len(t, results, 4)
	assert.Equal(t, domain.StepError, results[0].Status)
	assert.Equal(t, domain.StepSuccess, results[1].Status)
	assert.Equal(t, domain.StepSuccess, results[2].Status)
	assert.Equal(t, domain.StepError, results[3].Status)

	require.Len(t, events.events, 1)
	assert.Equal(t, "Fix login", events.events[0].Payload)
	assert.Equal(t, "task-9", events.events[0].RecordID)
	assert.Equal(t, []string{"a2"}, agents.invoked)
	assert.Equal(t, []string{"a1"}, agents.chains[0])
}

func TestDispatchIncompleteDestinationFailsAlone(t *testing.T) {
	records := &fakeRecords{}
	events := &fakeEvents{}
	d := New(records, events, nil, nil)

	results := d.Dispatch(context.Background(), []domain.DestinationElement{
		dbDest("d1", "rec-1"),
		{ID: "d2", TargetType: domain.TargetUIComponent},
		{ID: "d3", TargetType: domain.TargetDatabase, TargetRecordID: "rec-1"},
		{ID: "d4", TargetType: "fax"},
		dbDest("d1", "rec-2"),
	}, nil, RunContext{AgentID: "a1", LatestOutput: "v"})

	require.Len(t, results, 5)
	assert.Equal(t, domain.StepSuccess, results[0].Status)
	for _, r := range results[1:] {
		assert.Equal(t, domain.StepError, r.Status, r.DestinationID)
	}
	assert.Contains(t, results[1].Error, "component name is required")
	assert.Contains(t, results[2].Error, "table and column are required")
	assert.Contains(t, results[3].Error, domain.ErrUnsupportedTarget.Error())
	assert.Contains(t, results[4].Error, "duplicate destination id")

	require.Len(t, records.calls, 1)
	assert.Equal(t, "rec-1", records.calls[0].recordID)
	assert.Empty(t, events.events)
}

func TestDispatchDetectsCircularAgent(t *testing.T) {
	agents := &fakeAgents{}
	d := New(nil, nil, agents, nil)

	rc := RunContext{AgentID: "b", Chain: []string{"a", "b"}}
	results := d.Dispatch(context.Background(), []domain.DestinationElement{
		{ID: "back", TargetType: domain.TargetAgent, TargetAgentID: "a"},
	}, nil, rc)

	require.Len(t, results, 1)
	assert.Equal(t, domain.StepError, results[0].Status)
	assert.Contains(t, results[0].Error, "circular dependency detected")
	assert.Empty(t, agents.invoked)
}

func TestDispatchDryRunSimulatesWrites(t *testing.T) {
	records := &fakeRecords{}
	agents := &fakeAgents{}
	d := New(records, nil, agents, nil)

	results := d.Dispatch(context.Background(), []domain.DestinationElement{
		dbDest("d1", "rec-1"),
		{ID: "d2", TargetType: domain.TargetAgent, TargetAgentID: "a2"},
	}, nil, RunContext{AgentID: "a1", Chain: []string{"a1"}, DryRun: true})

	for _, r := range results {
		assert.Equal(t, domain.StepSuccess, r.Status)
		assert.Contains(t, r.Detail, "simulated")
	}
	assert.Empty(t, records.calls)
	assert.Empty(t, agents.invoked)
}

func TestRunContextDescendCopiesChain(t *testing.T) {
	root := RunContext{AgentID: "a", Chain: []string{"a"}}
	child := root.Descend("b")
	grand := child.Descend("c")

	assert.Equal(t, []string{"a"}, root.Chain)
	assert.Equal(t, []string{"a", "b"}, child.Chain)
	assert.Equal(t, []string{"a", "b", "c"}, grand.Chain)
	assert.True(t, grand.Visited("a"))
	assert.False(t, child.Visited("c"))
}
