package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		want    any
		wantErr string
	}{
		{name: "min-match fraction", key: "lift.min-match", value: "0.9", want: 0.9},
		{name: "min-blocks zero", key: "lift.min-blocks", value: "0", want: 0.0},
		{name: "workers", key: "lift.workers", value: "8", want: 8},
		{name: "unknown key", key: "lift.min-mach", value: "0.9", wantErr: "unknown config key"},
		{name: "fraction above one", key: "lift.min-match", value: "1.5", wantErr: "between 0 and 1"},
		{name: "non-numeric fraction", key: "lift.min-match", value: "high", wantErr: "between 0 and 1"},
		{name: "negative workers", key: "lift.workers", value: "-1", wantErr: "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseConfigValue(tt.key, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfigValue_UnknownKeyListsKnownKeys(t *testing.T) {
	_, err := parseConfigValue("bogus", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lift.min-blocks, lift.min-match, lift.workers")
}
