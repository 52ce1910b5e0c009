package ptest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger whose output
// is associated with the given test.
func NewLogger(t *testing.T) *slog.Logger {
	return slogt.New(t)
}
