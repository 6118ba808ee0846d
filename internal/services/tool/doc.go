// Package tool runs the external processing command that receives each
// validated archive. The command is opaque: it gets file paths as arguments
// and reports success through its exit status.
package tool
