// Package validation verifies an archive against its embedded checksum
// manifest.
//
// Validate makes at most two passes over the archive: a metadata sweep that
// extracts the manifest and every small member (skipped when a previous run
// left matching files behind) and a bulk sweep that streams payload members
// through their digest without writing them to disk. Every manifest entry
// yields a Record; the aggregate passes only when all records pass and the
// required metadata files are present.
package validation
