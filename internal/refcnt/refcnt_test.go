package refcnt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	var released bool

	c := New(func() { released = true })
	require.False(t, released)

	c.IncRef()
	c.DecRef()
	require.False(t, released)

	require.NotPanics(t, func() { c.DecRef() })
	require.True(t, released)
}

func TestCounterUseAfterReleasePanics(t *testing.T) {
	c := New(nil)
	require.NotPanics(t, func() { c.DecRef() })
	require.Panics(t, func() { c.DecRef() })

	c = New(nil)
	c.DecRef()
	require.Panics(t, func() { c.IncRef() })
}
