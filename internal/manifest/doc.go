// Package manifest models the checksum manifest embedded in instrument
// archives.
//
// A manifest is an ordered list of (digest, member name) entries parsed from
// md5sum-style text. The package also owns the Bulk/Metadata classification
// that decides whether a member is streamed in place or extracted to disk,
// and the digest algorithms used to verify members.
package manifest
