// Package sinks implements concrete progress consumers such as Prometheus,
// the run store, structured logging and message publishing. Each sink
// satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
