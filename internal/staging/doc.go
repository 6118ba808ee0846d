// Package staging owns per-run work directories under the staging root.
package staging
