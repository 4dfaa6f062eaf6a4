package schema_test

import (
	"errors"
	"testing"

	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fields = schema.Schema{
	"query":   schema.String(),
	"retries": schema.Int(),
	"tags":    schema.Slice(schema.String()),
}

func TestValidate(t *testing.T) {
	t.Run("present fields only", func(t *testing.T) {
		assert.NoError(t, schema.Validate(fields, map[string]any{"query": "go", "tags": []string{"a"}}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.NoError(t, schema.Validate(fields, nil))
	})

	t.Run("type mismatch", func(t *testing.T) {
		err := schema.Validate(fields, map[string]any{"query": "go", "retries": "three"})
		require.Error(t, err)

		var ve *schema.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "retries", ve.Key)
		assert.Equal(t, "three", ve.Value)
		assert.Len(t, schema.Invalid(err), 1)
	})

	t.Run("undeclared field", func(t *testing.T) {
		err := schema.Validate(fields, map[string]any{"other": 1})
		invalid := schema.Invalid(err)
		require.Len(t, invalid, 1)
		assert.Equal(t, "other", invalid[0].Key)
		assert.EqualError(t, err, `field "other": not declared`)
	})

	t.Run("failures in key order", func(t *testing.T) {
		err := schema.Validate(fields, map[string]any{"tags": 1, "query": 2, "retries": "x"})
		invalid := schema.Invalid(err)
		require.Len(t, invalid, 3)
		assert.Equal(t, "query", invalid[0].Key)
		assert.Equal(t, "retries", invalid[1].Key)
		assert.Equal(t, "tags", invalid[2].Key)
		assert.Contains(t, err.Error(), "3 invalid fields:")
	})
}

func TestInvalid_OtherErrors(t *testing.T) {
	assert.Nil(t, schema.Invalid(nil))
	assert.Nil(t, schema.Invalid(errors.New("boom")))
}
