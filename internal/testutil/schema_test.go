package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservatorySchemaIsValid(t *testing.T) {
	schema := Observatory()
	require.Equal(t, []string{"planet", "telescope"}, schema.ModelNames())
	for i := range schema.Models {
		assert.Empty(t, schema.Models[i].Validate(), schema.Models[i].Name)
		for _, rel := range schema.Models[i].Relationships {
			assert.Empty(t, rel.Inverse, rel.Name)
		}
	}
}
