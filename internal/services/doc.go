// Package services defines shared utilities consumed by the workflow stage
// handlers and the external tool integration.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, run identifiers, stage names,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify item
//     failures (unreadable archive, checksum mismatch, required file missing,
//     ...) so the workflow manager can persist a precise failure kind.
//   - MemberError, which carries the offending archive member names alongside
//     the marker.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
