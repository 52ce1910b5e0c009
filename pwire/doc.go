// Package pwire frames broadcast shard units for transport,
// using a length-delimited, size-bounded binary encoding.
//
// Decoding is incremental:
// the [Decoder] accepts bytes as they arrive,
// and a buffer that does not yet hold a complete frame
// yields no unit rather than an error.
package pwire
