package pwire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller/pwire"
)

func testUnit() *pwire.Unit {
	u := &pwire.Unit{
		Topic:     7,
		Publisher: []byte("publisher-id"),
		Signature: []byte("signature-bytes"),
		Index:     3,
		Shard:     []byte("the shard content"),
		Proof: [][]byte{
			bytes.Repeat([]byte{0xaa}, pwire.RootSize),
			bytes.Repeat([]byte{0xbb}, pwire.RootSize),
		},
	}
	copy(u.Root[:], bytes.Repeat([]byte{0x11}, pwire.RootSize))
	return u
}

func TestCodec_roundTrip(t *testing.T) {
	t.Parallel()

	c := pwire.Codec{}
	u := testUnit()

	frame, err := c.EncodeFrame(u)
	require.NoError(t, err)

	d := pwire.NewDecoder(c)
	d.Feed(frame)

	got, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, u, got)

	// Buffer drained: no further unit.
	got, err = d.Next()
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCodec_roundTripEmptyFields(t *testing.T) {
	t.Parallel()

	c := pwire.Codec{}
	u := &pwire.Unit{Topic: 1, Index: 0}

	frame, err := c.EncodeFrame(u)
	require.NoError(t, err)

	d := pwire.NewDecoder(c)
	d.Feed(frame)

	got, err := d.Next()
	require.NoError(t, err)

	require.Equal(t, u.Topic, got.Topic)
	require.Equal(t, u.Index, got.Index)
	require.Empty(t, got.Publisher)
	require.Empty(t, got.Signature)
	require.Empty(t, got.Shard)
	require.Empty(t, got.Proof)
}

func TestCodec_encodeOversized(t *testing.T) {
	t.Parallel()

	c := pwire.Codec{MaxFrameSize: 64}

	u := testUnit()
	u.Shard = make([]byte, 128)

	_, err := c.EncodeFrame(u)
	require.ErrorAs(t, err, &pwire.OversizedFrameError{})
}

func TestDecoder_oversizedPrefixFailsBeforePayload(t *testing.T) {
	t.Parallel()

	big := pwire.Codec{}
	frame, err := big.EncodeFrame(testUnit())
	require.NoError(t, err)

	small := pwire.Codec{MaxFrameSize: 16}
	d := pwire.NewDecoder(small)

	// Only the length prefix is available,
	// yet the decoder must already reject the frame.
	d.Feed(frame[:4])

	_, err = d.Next()
	require.ErrorAs(t, err, &pwire.OversizedFrameError{})
}

func TestDecoder_byteAtATimeMatchesBulk(t *testing.T) {
	t.Parallel()

	c := pwire.Codec{}

	units := []*pwire.Unit{testUnit(), testUnit(), testUnit()}
	units[1].Index = 9
	units[2].Shard = []byte("different shard")

	var stream []byte
	for _, u := range units {
		frame, err := c.EncodeFrame(u)
		require.NoError(t, err)
		stream = append(stream, frame...)
	}

	// Bulk feed.
	bulk := pwire.NewDecoder(c)
	bulk.Feed(stream)

	var bulkUnits []*pwire.Unit
	for {
		u, err := bulk.Next()
		require.NoError(t, err)
		if u == nil {
			break
		}
		bulkUnits = append(bulkUnits, u)
	}

	// One byte at a time.
	trickle := pwire.NewDecoder(c)
	var trickleUnits []*pwire.Unit
	for _, b := range stream {
		trickle.Feed([]byte{b})
		for {
			u, err := trickle.Next()
			require.NoError(t, err)
			if u == nil {
				break
			}
			trickleUnits = append(trickleUnits, u)
		}
	}

	require.Equal(t, units, bulkUnits)
	require.Equal(t, bulkUnits, trickleUnits)
}

func TestDecoder_partialFrameIsNotAnError(t *testing.T) {
	t.Parallel()

	c := pwire.Codec{}
	frame, err := c.EncodeFrame(testUnit())
	require.NoError(t, err)

	d := pwire.NewDecoder(c)
	d.Feed(frame[:len(frame)-1])

	u, err := d.Next()
	require.NoError(t, err)
	require.Nil(t, u)

	d.Feed(frame[len(frame)-1:])

	u, err = d.Next()
	require.NoError(t, err)
	require.NotNil(t, u)
}

func TestDecoder_truncatedUnitInsideFrame(t *testing.T) {
	t.Parallel()

	c := pwire.Codec{}
	frame, err := c.EncodeFrame(testUnit())
	require.NoError(t, err)

	// Rewrite the frame's declared length to cut the unit short,
	// keeping the prefix itself valid.
	frame[0], frame[1], frame[2], frame[3] = 0, 0, 0, 10

	d := pwire.NewDecoder(c)
	d.Feed(frame[:4+10])

	_, err = d.Next()
	require.Error(t, err)
}
