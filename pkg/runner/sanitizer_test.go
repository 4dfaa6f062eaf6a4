package runner_test

import (
	"strings"
	"testing"

	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	limit := runner.DefaultMaxInputSize

	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", limit - 1, false},
		{"Exact Limit", limit, false},
		{"Over Limit", limit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.SanitizeInput(strings.Repeat("a", tt.inputSize))
			if tt.wantErr {
				assert.ErrorIs(t, err, runner.ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed", "Line1\nLine2\tTabbed"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runner.SanitizeInput(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeInput_EnvOverride(t *testing.T) {
	t.Setenv(runner.EnvMaxInputSize, "10")
	assert.Equal(t, 10, runner.MaxInputSize())

	_, err := runner.SanitizeInput("12345678901")
	assert.ErrorIs(t, err, runner.ErrInputTooLarge)

	_, err = runner.SanitizeInput("12345")
	assert.NoError(t, err)
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := runner.SanitizeInput("\xbd\xb2\x3d\xbc\x20\xe2\x8c\x98")
	assert.ErrorIs(t, err, runner.ErrInvalidUTF8)
}

func TestSanitizeValues(t *testing.T) {
	in := map[string]any{
		"query": "go\x00lang",
		"count": 3,
		"tags":  []string{"a\x07", "b"},
		"nested": map[string]any{
			"items": []any{"x\x1b", 1},
		},
	}

	out, err := runner.SanitizeValues(in)
	require.NoError(t, err)
	assert.Equal(t, "golang", out["query"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, []string{"a", "b"}, out["tags"])
	assert.Equal(t, map[string]any{"items": []any{"x", 1}}, out["nested"])
	assert.Equal(t, "go\x00lang", in["query"], "input must not be modified")

	t.Run("too large", func(t *testing.T) {
		t.Setenv(runner.EnvMaxInputSize, "4")
		_, err := runner.SanitizeValues(map[string]any{"query": "too long"})
		assert.ErrorIs(t, err, runner.ErrInputTooLarge)
		assert.ErrorContains(t, err, `field "query"`)
	})

	t.Run("nil", func(t *testing.T) {
		out, err := runner.SanitizeValues(nil)
		require.NoError(t, err)
		assert.Nil(t, out)
	})
}
