package pmsha256_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller/pmerkle/pmsha256"
)

func TestHasher_domainTags(t *testing.T) {
	t.Parallel()

	h := pmsha256.Hasher{}

	expLeaf := sha256.Sum256([]byte("<leaf>payload</leaf>"))
	require.Equal(t, expLeaf[:], h.Leaf([]byte("payload"), nil))

	expNode := sha256.Sum256([]byte(
		"<node><left>l</left><right>r</right></node>",
	))
	require.Equal(t, expNode[:], h.Node([]byte("l"), []byte("r"), nil))
}

func TestHasher_appendsToDst(t *testing.T) {
	t.Parallel()

	h := pmsha256.Hasher{}

	dst := []byte("prefix")
	out := h.Leaf([]byte("payload"), dst)

	require.Equal(t, []byte("prefix"), out[:6])
	require.Len(t, out, 6+pmsha256.HashSize)
}
