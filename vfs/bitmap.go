package vfs

import (
	"github.com/pkg/errors"
)

// Bitmap is a packed bit set, one bit per cluster. Repair uses it to mark
// the clusters reachable from live directory entries.
type Bitmap []byte

func NewBitmap(length int) Bitmap {
	return make(Bitmap, NeededMemoryForBitmap(length))
}

func NeededMemoryForBitmap(length int) int {
	return (length + 7) / 8
}

func (b Bitmap) Len() int {
	return len(b) * 8
}

func (b Bitmap) SetBit(position int, value byte) error {
	if value != 0 && value != 1 {
		return errors.New("value can be only 0 or 1")
	}

	posInSlice := position / 8
	if position < 0 || posInSlice >= len(b) {
		return OutOfRange{position, b.Len() - 1}
	}

	posInByte := uint(position % 8)

	if value == 1 {
		b[posInSlice] |= byte(1) << posInByte
	} else {
		b[posInSlice] &= ^(byte(1) << posInByte)
	}

	return nil
}

func (b Bitmap) GetBit(position int) (byte, error) {
	posInSlice := position / 8
	if position < 0 || posInSlice >= len(b) {
		return 0, OutOfRange{position, b.Len() - 1}
	}

	posInByte := uint(position % 8)

	return (b[posInSlice] >> posInByte) & 1, nil
}

// IsSet is GetBit for callers that already checked the range.
func (b Bitmap) IsSet(position int) bool {
	value, err := b.GetBit(position)
	return err == nil && value == 1
}
