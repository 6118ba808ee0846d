// Package main hosts the sieve CLI entrypoint and command graph.
//
// The Cobra-based command tree loads an input list of archives into the queue,
// drives the validation and tool lanes until the batch is idle, and exposes
// queue maintenance, one-off archive inspection and verification, and
// configuration scaffolding. Configuration resolution, the process lock
// guarding the queue database, and logger construction are centralized in
// commandContext so subcommands stay declarative.
package main
