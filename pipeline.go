package propeller

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/windlass-engine/propeller/pcoding"
	"github.com/windlass-engine/propeller/pmerkle"
	"github.com/windlass-engine/propeller/pmerkle/pmsha256"
	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// PrepareConfig is the configuration for [PrepareUnits].
type PrepareConfig struct {
	// The logical broadcast stream the message belongs to.
	Topic uint64

	// The publishing peer; recorded in every unit.
	Publisher pschedule.PeerID

	// How to sign the message root.
	Signer Signer

	// Shard counts, normally taken from the channel's
	// [pschedule.Schedule].
	NumData, NumParity int

	// How to hash Merkle tree entries.
	// Nil means the SHA-256 hasher.
	Hasher pmerkle.Hasher

	// Skip padding the message before splitting.
	// This breaks the coding layer's even-length requirement
	// for most message sizes; it exists for testing only.
	DisablePadding bool
}

func (c PrepareConfig) merkleConfig() pmerkle.Config {
	h := c.Hasher
	if h == nil {
		h = pmsha256.Hasher{}
	}
	return pmerkle.Config{Hasher: h, HashSize: pwire.RootSize}
}

// PrepareUnits turns an outbound message
// into one signed, provable shard unit per shard slot:
// the message is padded and split into NumData data shards,
// NumParity parity shards are derived,
// and a Merkle tree over the full shard set
// produces the message root and each unit's inclusion proof.
//
// Unit i is intended for the peer assigned shard index i
// by the channel schedule.
//
// It returns an error wrapping [ErrInvalidDataSize]
// when the message cannot satisfy
// the shard counts' divisibility constraints.
func PrepareUnits(message []byte, cfg PrepareConfig) ([]*pwire.Unit, error) {
	if cfg.Signer == nil {
		panic(fmt.Errorf("BUG: Signer must not be nil"))
	}

	k, m := cfg.NumData, cfg.NumParity
	if k <= 0 {
		return nil, fmt.Errorf(
			"%w: cannot split message across %d data shards", ErrInvalidDataSize, k,
		)
	}
	if k+m > (1 << 16) {
		return nil, fmt.Errorf(
			"%w: %d total shards exceeds the wire index range",
			ErrInvalidDataSize, k+m,
		)
	}

	padded := message
	if !cfg.DisablePadding {
		padded = pcoding.Pad(message, k)
	}

	data, err := pcoding.SplitData(padded, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataSize, err)
	}

	parity, err := pcoding.GenerateParity(data, m)
	if err != nil {
		return nil, fmt.Errorf("failed to generate parity shards: %w", err)
	}

	shards := make([][]byte, 0, k+m)
	shards = append(shards, data...)
	shards = append(shards, parity...)

	tree := pmerkle.NewTree(shards, cfg.merkleConfig())
	root := tree.Root()

	sig, err := cfg.Signer.Sign(root)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message root: %w", err)
	}

	units := make([]*pwire.Unit, len(shards))
	for i, shard := range shards {
		u := &pwire.Unit{
			Topic:     cfg.Topic,
			Publisher: []byte(cfg.Publisher),
			Signature: sig,
			Index:     uint16(i),
			Shard:     shard,
			Proof:     tree.Prove(i),
		}
		copy(u.Root[:], root)

		units[i] = u
	}

	return units, nil
}

// RebuildConfig is the configuration for [RebuildMessage].
type RebuildConfig struct {
	// Shard counts the message was prepared with.
	NumData, NumParity int

	// The advertised message root every verifier agreed on.
	Root [pwire.RootSize]byte

	// The local peer's assigned shard index for this message,
	// or -1 when the local peer has no assignment
	// (it was the publisher, or outside the channel).
	LocalShardIndex int

	// How to hash Merkle tree entries.
	// Nil means the SHA-256 hasher.
	Hasher pmerkle.Hasher

	// Must match the value used at preparation time.
	DisablePadding bool
}

// RebuildResult is the result of a successful [RebuildMessage].
type RebuildResult struct {
	// The original published message.
	Message []byte

	// The locally-assigned shard and a fresh proof for it,
	// ready to be relayed to the channel's other peers.
	// Nil when RebuildConfig.LocalShardIndex was -1.
	LocalShard []byte
	LocalProof [][]byte
}

// RebuildMessage reconstructs the original message
// from any sufficient subset of valid shard units.
//
// Numeric reconstruction succeeding is not sufficient on its own:
// the full shard set is regenerated,
// its shard lengths checked ([ErrUnequalShardLengths]),
// and the Merkle root recomputed and compared
// against the advertised root ([ErrMismatchedRoot]),
// so that the returned message
// is exactly the one every verifier committed to.
func RebuildMessage(units []*pwire.Unit, cfg RebuildConfig) (RebuildResult, error) {
	k, m := cfg.NumData, cfg.NumParity

	received := make([]pcoding.IndexedShard, len(units))
	for i, u := range units {
		received[i] = pcoding.IndexedShard{
			Index: int(u.Index),
			Shard: u.Shard,
		}
	}

	data, err := pcoding.Reconstruct(received, k, m)
	if err != nil {
		var unequal pcoding.UnequalShardLengthsError
		if errors.As(err, &unequal) {
			return RebuildResult{}, fmt.Errorf("%w: %v", ErrUnequalShardLengths, err)
		}
		return RebuildResult{}, fmt.Errorf("failed to reconstruct data shards: %w", err)
	}

	parity, err := pcoding.GenerateParity(data, m)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("failed to regenerate parity shards: %w", err)
	}

	shards := make([][]byte, 0, k+m)
	shards = append(shards, data...)
	shards = append(shards, parity...)

	for i, s := range shards[1:] {
		if len(s) != len(shards[0]) {
			return RebuildResult{}, fmt.Errorf(
				"%w: shard %d has length %d, shard 0 has length %d",
				ErrUnequalShardLengths, i+1, len(s), len(shards[0]),
			)
		}
	}

	tree := pmerkle.NewTree(shards, rebuildMerkleConfig(cfg))
	if !bytes.Equal(tree.Root(), cfg.Root[:]) {
		return RebuildResult{}, ErrMismatchedRoot
	}

	msg := pcoding.Combine(data)
	if !cfg.DisablePadding {
		msg, err = pcoding.Unpad(msg)
		if err != nil {
			return RebuildResult{}, fmt.Errorf(
				"failed to unpad reconstructed message: %w", err,
			)
		}
	}

	res := RebuildResult{Message: msg}

	if cfg.LocalShardIndex >= 0 && cfg.LocalShardIndex < len(shards) {
		res.LocalShard = shards[cfg.LocalShardIndex]
		res.LocalProof = tree.Prove(cfg.LocalShardIndex)
	}

	return res, nil
}

func rebuildMerkleConfig(cfg RebuildConfig) pmerkle.Config {
	h := cfg.Hasher
	if h == nil {
		h = pmsha256.Hasher{}
	}
	return pmerkle.Config{Hasher: h, HashSize: pwire.RootSize}
}
