package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetBit(t *testing.T) {
	bitmap := NewBitmap(16)
	require.NoError(t, bitmap.SetBit(0, 1))
	require.NoError(t, bitmap.SetBit(9, 1))

	val, err := bitmap.GetBit(0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), val)

	assert.True(t, bitmap.IsSet(9))
	assert.False(t, bitmap.IsSet(8))
}

func TestSetOverwriteAndGetBit(t *testing.T) {
	bitmap := NewBitmap(16)
	require.NoError(t, bitmap.SetBit(3, 1))
	require.NoError(t, bitmap.SetBit(3, 0))

	val, err := bitmap.GetBit(3)
	require.NoError(t, err)
	assert.Equal(t, byte(0), val)
}

func TestBitmapOutOfRange(t *testing.T) {
	bitmap := NewBitmap(10)
	assert.Equal(t, 16, bitmap.Len())

	_, err := bitmap.GetBit(16)
	assert.IsType(t, OutOfRange{}, err)

	err = bitmap.SetBit(-1, 1)
	assert.IsType(t, OutOfRange{}, err)

	assert.False(t, bitmap.IsSet(100))
}

func TestBitmapInvalidValue(t *testing.T) {
	bitmap := NewBitmap(8)
	assert.Error(t, bitmap.SetBit(0, 2))
}
