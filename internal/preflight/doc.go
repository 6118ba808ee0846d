// Package preflight verifies the environment before a batch starts: staging
// and output directories are writable, the staging filesystem has the
// configured headroom, and the external tool resolves on PATH.
package preflight
