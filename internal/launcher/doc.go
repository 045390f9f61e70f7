// Package launcher starts a staged executable and decides, from its merged
// output, whether startup succeeded.
//
// The child's stdout and stderr share one pipe. A pump goroutine reads it
// line by line into a stream.Broadcaster, which feeds every registered
// ResultListener before forwarding to the echo sink. Run waits for the
// first of: a marker, process exit, the timeout, or cancellation.
package launcher
