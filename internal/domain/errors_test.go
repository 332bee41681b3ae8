package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunFatal(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", boom, false},
		{"prompt config", ConfigError(ModulePrompt, boom), true},
		{"model upstream", UpstreamError(ModuleModel, boom), true},
		{"wrapped model", fmt.Errorf("step: %w", UpstreamError(ModuleModel, boom)), true},
		{"model delivery", DeliveryError(ModuleModel, boom), false},
		{"extractor upstream", UpstreamError(ModuleJSONExtractor, boom), false},
		{"router config", ConfigError(ModuleRouter, boom), false},
		{"destinations delivery", DeliveryError(ModuleDestinations, boom), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RunFatal(tc.err))
		})
	}
}

func TestStepFailureUnwraps(t *testing.T) {
	err := UpstreamError(ModuleJSONExtractor, ErrSourceInputNotFound)
	assert.ErrorIs(t, err, ErrSourceInputNotFound)

	var f *StepFailure
	assert.True(t, errors.As(err, &f))
	assert.Equal(t, KindUpstream, f.Kind)
	assert.Equal(t, ModuleJSONExtractor, f.Module)
}
