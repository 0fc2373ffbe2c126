package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_LastWriteWins(t *testing.T) {
	c := NewContext()
	c.Merge(map[string]any{"task_description": "first", "planOutput": "spec"})
	c.Merge(map[string]any{"task_description": "second"})

	assert.Equal(t, "second", c.TaskDescription)

	v, ok := c.Get("planOutput")
	require.True(t, ok)
	assert.Equal(t, "spec", v)
}

func TestMerge_RoutesCommonFieldsToTypedSlots(t *testing.T) {
	c := NewContext()
	c.Merge(map[string]any{
		"task_description": "build",
		"priority":         "low",
		"constraints":      []any{"c1"},
		"stage_thing":      42,
	})

	assert.Equal(t, "build", c.TaskDescription)
	assert.Equal(t, "low", c.Priority)
	assert.Equal(t, []any{"c1"}, c.Constraints)
	assert.NotContains(t, c.Fields, "task_description")
	assert.Equal(t, 42, c.Fields["stage_thing"])
}

func TestMerge_NonStringTaskDescriptionGoesToFields(t *testing.T) {
	c := NewContext()
	c.Merge(map[string]any{"task_description": 7})

	assert.Empty(t, c.TaskDescription)
	assert.Equal(t, 7, c.Fields["task_description"])
}

func TestClone_IndependentFields(t *testing.T) {
	c := NewContext()
	c.Set("key", "value")

	clone := c.Clone()
	clone.Set("key", "changed")
	clone.Set("new", "entry")

	v, _ := c.Get("key")
	assert.Equal(t, "value", v)
	_, ok := c.Get("new")
	assert.False(t, ok)
}

func TestClone_Nil(t *testing.T) {
	var c *Context
	assert.Nil(t, c.Clone())
}

func TestGet_MissingField(t *testing.T) {
	c := NewContext()
	_, ok := c.Get("absent")
	assert.False(t, ok)
	_, ok = c.Get(FieldPriority)
	assert.False(t, ok)
}
