// Package image converts a live in-memory SQLite engine to and from a
// portable byte sequence.
//
// # Format
//
// A serialized image is a CBOR envelope:
//
//	header:  magic, version, identity, created_at, size, checksum
//	payload: zstd-compressed SQLite database image
//
// The checksum is a BLAKE3 keyed hash of the uncompressed database image.
// Raw SQLite database files are accepted by Deserialize as well, so images
// produced by other SQLite tooling can be imported.
//
// An empty input deserializes to a fresh engine with no tables.
package image
