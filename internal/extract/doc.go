// Package extract materializes small metadata members into a per-run work
// directory and publishes the normalized copies.
//
// Writes go through a temp file and are renamed into place only when the
// content differs from what is already on disk, so reruns over the same
// archive leave existing files untouched. Hidden members (leading dot) are
// normalized by copying to the un-prefixed name; the original stays in place.
package extract
