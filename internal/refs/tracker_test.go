package refs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RegisterMonotonicFromOne(t *testing.T) {
	tr := NewTracker()

	assert.Equal(t, 1, tr.Register("fact-a"))
	assert.Equal(t, 2, tr.Register("fact-b"))
	assert.Equal(t, 3, tr.Register("entity-a"))
	assert.Equal(t, 3, tr.Count())
}

func TestTracker_ResolveReturnsRegisteredElement(t *testing.T) {
	tr := NewTracker()
	id := tr.Register("the element")

	el, err := tr.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, "the element", el)
}

func TestTracker_ResolveUnknownID(t *testing.T) {
	tr := NewTracker()
	tr.Register("only one")

	_, err := tr.Resolve(42)
	require.Error(t, err)

	var unknown *UnknownReferenceError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 42, unknown.ID)
}

func TestTracker_RunsAreIsolated(t *testing.T) {
	first := NewTracker()
	id := first.Register("from run one")

	second := NewTracker()
	_, err := second.Resolve(id)

	var unknown *UnknownReferenceError
	require.True(t, errors.As(err, &unknown))
	assert.False(t, second.Known(id))
}
