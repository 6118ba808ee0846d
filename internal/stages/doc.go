// Package stages implements the workflow stage handlers: the inspector
// records the archive layout, the validator verifies and extracts metadata and
// publishes it, and the hand-off stage runs the external tool.
package stages
