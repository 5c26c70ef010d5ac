package surge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRouter_ResolveHit(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	r := NewServiceRouter(e)
	handler := NopWSHandler{}
	r.AddService("/chat", handler)

	resolved, err := r.Resolve("/chat")
	require.NoError(t, err)
	assert.Equal(t, handler, resolved)
}

func TestServiceRouter_ResolveMiss(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	r := NewServiceRouter(e)

	_, err := r.Resolve("/missing")
	require.Error(t, err)

	var surgeErr *Error
	require.ErrorAs(t, err, &surgeErr)
	assert.Equal(t, KindUnknownService, surgeErr.Kind)
}

func TestServiceRouter_RemoveServiceByAnotherCallerIsFine(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	r := NewServiceRouter(e)
	handler := NopWSHandler{}
	r.AddService("/chat", handler)

	assert.NotPanics(t, func() {
		r.RemoveService("/chat", nil)
	})
	assert.Equal(t, 0, r.Count())
}

func TestServiceRouter_SelfRemovalPanics(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	r := NewServiceRouter(e)
	handler := NopWSHandler{}
	r.AddService("/chat", handler)

	assert.Panics(t, func() {
		r.RemoveService("/chat", handler)
	})
}
