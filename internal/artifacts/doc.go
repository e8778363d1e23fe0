// Package artifacts persists intermediate stage outputs in SQLite so a run
// can be inspected after the fact and marked chunks can be regenerated
// without re-transcribing. Payloads are content-addressed with BLAKE3, so a
// stage that produces identical output across retries stores one copy.
//
// The store is strictly best effort from the pipeline's point of view: save
// failures are logged and swallowed by the scheduler.
package artifacts
