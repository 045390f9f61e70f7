// Package stream bridges a child process's output into a startup verdict.
//
// A Broadcaster receives output blocks from whatever goroutine reads the
// process, hands each block to every registered ResultListener in
// registration order, and then forwards it to an underlying Sink. Each
// ResultListener accumulates the text it sees and latches on the first
// success or failure marker, waking callers blocked in WaitForResult.
//
// # Markers
//
// Matching is done against the accumulated output, not per block, because a
// marker may straddle two blocks. Any caller-supplied success pattern wins
// over the failure marker "[ERROR]". On failure the recorded detail is the
// accumulated text from the first "[ERROR]" onward.
//
// # Usage
//
//	b := stream.NewBroadcaster(stream.WriterSink(os.Stdout))
//	started := b.AddListener(stream.NewResultListener("ready for connections"))
//	go stream.Pump(stdout, b)
//
//	switch started.WaitForResult(ctx, 30*time.Second) {
//	case stream.Success:
//	case stream.Failure:
//	    detail, _ := started.FailureFound()
//	    return fmt.Errorf("startup failed: %s", detail)
//	case stream.Pending:
//	    return fmt.Errorf("startup timed out")
//	}
package stream
