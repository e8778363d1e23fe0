// Package timeline performs post-hoc static analysis over a stage's output
// sequence and classifies degenerate model output patterns.
//
// Two independent scans flag items: excessive duration and start-time
// regression. An excessive-duration flag followed by a later regression flag
// merges into a corrupted range, the empirical signature of a model repeating
// content and then snapping back. Anomalies that never pair up are reported
// as independent timing slips.
package timeline
