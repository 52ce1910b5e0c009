package propeller

import "errors"

// ErrInvalidDataSize is returned by [PrepareUnits]
// when the message cannot be padded and split
// to satisfy the shard count's divisibility requirements.
var ErrInvalidDataSize = errors.New("invalid data size for shard counts")

// ErrUnequalShardLengths is returned by [RebuildMessage]
// when the shard set contains entries of differing lengths.
var ErrUnequalShardLengths = errors.New("shards have unequal lengths")

// ErrMismatchedRoot is returned by [RebuildMessage]
// when the Merkle root recomputed over the reconstructed shard set
// does not equal the advertised message root.
// It catches both corruption and a forged or incomplete coding attempt.
var ErrMismatchedRoot = errors.New("reconstructed shards do not match message root")

// ErrUnknownTopic is returned by [*Protocol.Publish]
// when no channel has been registered for the topic.
var ErrUnknownTopic = errors.New("no channel registered for topic")
