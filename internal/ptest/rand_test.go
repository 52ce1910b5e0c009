package ptest_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller/internal/ptest"
)

func TestRandomDataForTest_stableWithinTest(t *testing.T) {
	t.Parallel()

	a := ptest.RandomDataForTest(t, 64)
	b := ptest.RandomDataForTest(t, 64)

	require.Len(t, a, 64)
	require.Equal(t, a, b)

	// A shorter request is a prefix of a longer one,
	// since both read the same stream from its start.
	require.Equal(t, a[:16], ptest.RandomDataForTest(t, 16))
}

func TestRandomDataForTest_distinctAcrossTests(t *testing.T) {
	t.Parallel()

	var inner []byte
	t.Run("other", func(t *testing.T) {
		inner = ptest.RandomDataForTest(t, 64)
	})

	require.NotEqual(t, ptest.RandomDataForTest(t, 64), inner)
}
