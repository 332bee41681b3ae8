package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	ids map[string][]string
	err error
}

func (s staticSource) FlaggedIDs(_ context.Context, column string) ([]string, error) {
	return s.ids[column], s.err
}

func TestFlagManagerInitFromSource(t *testing.T) {
	src := staticSource{ids: map[string][]string{
		"paused":  {"a1", "a2"},
		"dry_run": {"a3"},
	}}
	paused := NewPausedFlags(nil, src, nil)
	dryRun := NewDryRunFlags(nil, src, nil)

	require.NoError(t, paused.Init(context.Background()))
	require.NoError(t, dryRun.Init(context.Background()))

	assert.True(t, paused.Has("a1"))
	assert.False(t, paused.Has("a3"))
	assert.True(t, dryRun.Has("a3"))
	assert.Equal(t, []string{"a1", "a2"}, paused.IDs())
}

func TestFlagManagerInitError(t *testing.T) {
	m := NewPausedFlags(nil, staticSource{err: errors.New("db down")}, nil)
	assert.Error(t, m.Init(context.Background()))
}

func TestFlagManagerSetLocal(t *testing.T) {
	m := NewPausedFlags(nil, nil, nil)
	require.NoError(t, m.Set(context.Background(), "a1", true))
	assert.True(t, m.Has("a1"))
	require.NoError(t, m.Set(context.Background(), "a1", false))
	assert.False(t, m.Has("a1"))
	assert.Empty(t, m.IDs())
}

func TestParseSignal(t *testing.T) {
	cases := []struct {
		payload string
		id      string
		status  bool
		ok      bool
	}{
		{"a1:true", "a1", true, true},
		{"a1:off", "a1", false, true},
		{"ns:agent:on", "ns:agent", true, true},
		{"a1", "", false, false},
		{":true", "", false, false},
		{"a1:maybe", "", false, false},
	}
	for _, tc := range cases {
		id, status, ok := ParseSignal(tc.payload)
		assert.Equal(t, tc.ok, ok, tc.payload)
		assert.Equal(t, tc.id, id, tc.payload)
		assert.Equal(t, tc.status, status, tc.payload)
	}
	id, status, ok := ParseSignal(FormatSignal("x", true))
	assert.True(t, ok)
	assert.Equal(t, "x", id)
	assert.True(t, status)
}

func TestFlagManagerInitDropsStaleLocalFlags(t *testing.T) {
	src := staticSource{ids: map[string][]string{"paused": {"a1"}}}
	m := NewPausedFlags(nil, src, nil)
	require.NoError(t, m.Set(context.Background(), "gone", true))

	// БД — источник истины: флаг, снятый без сигнала, исчезает после пересинхронизации
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, []string{"a1"}, m.IDs())
}
