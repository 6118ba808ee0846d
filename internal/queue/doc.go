// Package queue persists run items in SQLite and exposes helpers for driving
// their lifecycle.
//
// The Store manages the database connection, embedded migrations, atomic
// claiming of the oldest item in a status, stuck-item recovery, per-entry
// validation records and operator maintenance (retry, remove, clear).
//
// The database is working state for a batch rather than a long-term archive.
// Schema changes are added as new files under migrations/.
package queue
