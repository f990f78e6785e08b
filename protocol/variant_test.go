package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariant_Lookup(t *testing.T) {
	l, ok := Makerbot4G.Lookup(OpQueuePoint)
	require.True(t, ok)
	assert.Equal(t, Layout{Code: CodeQueuePointExt, Axes: 5, Timing: TimingMicros}, l)

	l, ok = Sanguino3G.Lookup(OpQueuePoint)
	require.True(t, ok)
	assert.Equal(t, CodeQueuePointAbs, l.Code)
	assert.Equal(t, 3, l.Axes)

	// inherited unchanged
	assert.Equal(t, CodeChangeTool, Makerbot4G.Code(OpChangeTool))
	assert.Equal(t, CodeGetPositionExt, Makerbot4G.Code(OpGetPosition))
	assert.Equal(t, CodeGetPosition, Sanguino3G.Code(OpGetPosition))
}

func TestVariant_Validate(t *testing.T) {
	assert.NoError(t, Sanguino3G.Validate())
	assert.NoError(t, Makerbot4G.Validate())

	bad := NewVariant("bad", Makerbot4G, map[Op]Layout{
		OpDelay: {Code: CodeChangeTool},
	})
	assert.Error(t, bad.Validate())
}

func TestVariantByName(t *testing.T) {
	v, err := VariantByName("makerbot4g")
	require.NoError(t, err)
	assert.Same(t, Makerbot4G, v)

	_, err = VariantByName("gen9")
	assert.Error(t, err)
}
