// Package archive opens instrument archives and walks their tar members
// without extracting them.
//
// Open sniffs the compression codec from magic bytes (gzip, zstd, lz4 frame,
// or plain tar). Inspector lists the real members of an archive and derives
// the nesting depth and run identifier from the first one. Walk streams
// members in archive order so callers can hash or materialize them in a
// single pass and stop early once they have what they need.
package archive
