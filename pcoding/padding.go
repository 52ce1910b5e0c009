package pcoding

import (
	"encoding/binary"
	"fmt"
)

// The padding appends an 8-byte big-endian length header
// at the very end of the padded message,
// with zero fill between the message and the header.
const padHeaderSize = 8

// Pad extends msg so that its length
// is an exact multiple of 2*shardCount.
// The coding layer requires every shard to have even length,
// which the doubled multiple guarantees.
//
// The original message length is recorded in a trailing header
// so that [Unpad] can losslessly reverse the padding.
func Pad(msg []byte, shardCount int) []byte {
	if shardCount <= 0 {
		panic(fmt.Errorf(
			"BUG: shardCount must be positive (got %d)", shardCount,
		))
	}

	unit := 2 * shardCount

	padded := len(msg) + padHeaderSize
	if rem := padded % unit; rem != 0 {
		padded += unit - rem
	}

	out := make([]byte, padded)
	copy(out, msg)
	binary.BigEndian.PutUint64(out[padded-padHeaderSize:], uint64(len(msg)))

	return out
}

// Unpad reverses [Pad], returning the original message.
//
// It returns [ErrInvalidPadding] if the trailing length header
// or the zero fill is inconsistent with the padded content,
// which is the signature of a corrupted reconstruction.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) < padHeaderSize {
		return nil, fmt.Errorf(
			"%w: %d bytes is shorter than the length header",
			ErrInvalidPadding, len(padded),
		)
	}

	n := binary.BigEndian.Uint64(padded[len(padded)-padHeaderSize:])
	if n > uint64(len(padded)-padHeaderSize) {
		return nil, fmt.Errorf(
			"%w: header declares %d message bytes but only %d are present",
			ErrInvalidPadding, n, len(padded)-padHeaderSize,
		)
	}

	for i := int(n); i < len(padded)-padHeaderSize; i++ {
		if padded[i] != 0 {
			return nil, fmt.Errorf(
				"%w: nonzero fill byte at offset %d", ErrInvalidPadding, i,
			)
		}
	}

	return padded[:n:n], nil
}
