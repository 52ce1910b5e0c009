package pwire

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrameSize bounds frames when the caller
// does not configure an explicit limit.
const DefaultMaxFrameSize = 32 << 20

// framePrefixSize is the fixed length prefix before every frame.
const framePrefixSize = 4

// OversizedFrameError is returned when a frame
// exceeds the configured maximum,
// on encode and on decode alike.
//
// On decode it is produced from the length prefix alone,
// before any payload bytes are read,
// so a malicious peer cannot force a large allocation.
type OversizedFrameError struct {
	Size, Limit int
}

func (e OversizedFrameError) Error() string {
	return fmt.Sprintf(
		"frame size %d exceeds limit %d", e.Size, e.Limit,
	)
}

// Codec frames units for transport
// with a length-delimited binary encoding.
//
// The zero MaxFrameSize means [DefaultMaxFrameSize].
type Codec struct {
	// Upper bound for an encoded frame,
	// including the length prefix.
	MaxFrameSize int
}

func (c Codec) limit() int {
	if c.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// EncodeFrame serializes u into a single length-prefixed frame.
//
// It returns an [OversizedFrameError]
// when the encoded unit exceeds the codec's maximum.
func (c Codec) EncodeFrame(u *Unit) ([]byte, error) {
	if len(u.Publisher) > (1<<16)-1 {
		return nil, fmt.Errorf(
			"publisher ID length %d does not fit in 16 bits", len(u.Publisher),
		)
	}
	if len(u.Signature) > (1<<16)-1 {
		return nil, fmt.Errorf(
			"signature length %d does not fit in 16 bits", len(u.Signature),
		)
	}
	if len(u.Proof) > (1<<8)-1 {
		return nil, fmt.Errorf(
			"proof length %d does not fit in 8 bits", len(u.Proof),
		)
	}
	for _, p := range u.Proof {
		if len(p) != RootSize {
			return nil, fmt.Errorf(
				"proof entry has length %d, want %d", len(p), RootSize,
			)
		}
	}

	payload := 8 + // topic
		2 + len(u.Publisher) +
		RootSize +
		2 + len(u.Signature) +
		2 + // shard index
		1 + len(u.Proof)*RootSize +
		4 + len(u.Shard)

	frameSize := framePrefixSize + payload
	if frameSize > c.limit() {
		return nil, OversizedFrameError{Size: frameSize, Limit: c.limit()}
	}

	out := make([]byte, 0, frameSize)
	out = binary.BigEndian.AppendUint32(out, uint32(payload))

	out = binary.BigEndian.AppendUint64(out, u.Topic)

	out = binary.BigEndian.AppendUint16(out, uint16(len(u.Publisher)))
	out = append(out, u.Publisher...)

	out = append(out, u.Root[:]...)

	out = binary.BigEndian.AppendUint16(out, uint16(len(u.Signature)))
	out = append(out, u.Signature...)

	out = binary.BigEndian.AppendUint16(out, u.Index)

	out = append(out, byte(len(u.Proof)))
	for _, p := range u.Proof {
		out = append(out, p...)
	}

	out = binary.BigEndian.AppendUint32(out, uint32(len(u.Shard)))
	out = append(out, u.Shard...)

	return out, nil
}

// Decoder incrementally decodes frames produced by [Codec.EncodeFrame].
//
// Feed bytes as they arrive with [*Decoder.Feed],
// then call [*Decoder.Next] repeatedly;
// a partial buffer is not an error,
// it simply yields no unit yet.
//
// Methods on Decoder are not safe for concurrent use.
type Decoder struct {
	codec Codec

	buf []byte
}

// NewDecoder returns a Decoder enforcing the given codec's frame limit.
func NewDecoder(codec Codec) *Decoder {
	return &Decoder{codec: codec}
}

// Feed appends incoming bytes to the decoder's buffer.
// The decoder copies p, so the caller may reuse it.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next decodes the next complete frame from the buffered bytes.
//
// It returns a nil unit and nil error
// when the buffer does not yet contain a full frame.
// It returns an [OversizedFrameError] as soon as
// a length prefix exceeding the limit is observed.
func (d *Decoder) Next() (*Unit, error) {
	if len(d.buf) < framePrefixSize {
		return nil, nil
	}

	payload := int(binary.BigEndian.Uint32(d.buf))
	if framePrefixSize+payload > d.codec.limit() {
		return nil, OversizedFrameError{
			Size:  framePrefixSize + payload,
			Limit: d.codec.limit(),
		}
	}

	if len(d.buf) < framePrefixSize+payload {
		return nil, nil
	}

	u, err := decodeUnit(d.buf[framePrefixSize : framePrefixSize+payload])
	if err != nil {
		return nil, err
	}

	// Shift out the consumed frame.
	// Copying keeps the decoder from pinning
	// the whole historical buffer.
	d.buf = append(d.buf[:0:0], d.buf[framePrefixSize+payload:]...)

	return u, nil
}

func decodeUnit(b []byte) (*Unit, error) {
	var u Unit

	take := func(n int, what string) ([]byte, error) {
		if len(b) < n {
			return nil, fmt.Errorf(
				"truncated frame: %d bytes remain, want %d for %s",
				len(b), n, what,
			)
		}
		out := b[:n:n]
		b = b[n:]
		return out, nil
	}

	f, err := take(8, "topic")
	if err != nil {
		return nil, err
	}
	u.Topic = binary.BigEndian.Uint64(f)

	f, err = take(2, "publisher length")
	if err != nil {
		return nil, err
	}
	if u.Publisher, err = take(int(binary.BigEndian.Uint16(f)), "publisher"); err != nil {
		return nil, err
	}

	f, err = take(RootSize, "root")
	if err != nil {
		return nil, err
	}
	copy(u.Root[:], f)

	f, err = take(2, "signature length")
	if err != nil {
		return nil, err
	}
	if u.Signature, err = take(int(binary.BigEndian.Uint16(f)), "signature"); err != nil {
		return nil, err
	}

	f, err = take(2, "shard index")
	if err != nil {
		return nil, err
	}
	u.Index = binary.BigEndian.Uint16(f)

	f, err = take(1, "proof length")
	if err != nil {
		return nil, err
	}
	u.Proof = make([][]byte, f[0])
	for i := range u.Proof {
		if u.Proof[i], err = take(RootSize, "proof entry"); err != nil {
			return nil, err
		}
	}

	f, err = take(4, "shard length")
	if err != nil {
		return nil, err
	}
	if u.Shard, err = take(int(binary.BigEndian.Uint32(f)), "shard"); err != nil {
		return nil, err
	}

	if len(b) != 0 {
		return nil, fmt.Errorf(
			"frame has %d trailing bytes after unit", len(b),
		)
	}

	return &u, nil
}
