// Package progress bridges monitor trees to asynchronous consumers. A
// Recorder listens on monitors and converts their synchronous callbacks into
// Events; the Hub batches those Events on a background goroutine and fans
// them out to pluggable sinks such as Prometheus metrics, structured logs,
// an in-memory run store or a Pub/Sub topic.
package progress
