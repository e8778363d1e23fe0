// Package preflight validates the environment before a run: directory
// access, external binaries, LLM reachability, and artifact volume headroom.
// Checks degrade to readable failure details instead of errors so the CLI
// can render them all at once.
package preflight
