package stream

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FailureMarker is the literal substring that denotes a startup failure.
const FailureMarker = "[ERROR]"

// Outcome is the state of a ResultListener.
type Outcome int

const (
	// Pending means no marker has been seen yet.
	Pending Outcome = iota
	// Success means a success pattern was seen.
	Success
	// Failure means the failure marker was seen first.
	Failure
)

// String returns the name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// ResultListener watches accumulated output for success or failure markers.
//
// The outcome latches on the first transition: once Success or Failure is
// recorded, later messages are dropped, so Output holds the startup output
// only and a long-running process does not grow it. A listener serves one
// start attempt.
type ResultListener struct {
	successPatterns []string
	// overlap is how far back a new message must rescan to catch a marker
	// split across messages.
	overlap int

	mu      sync.Mutex
	output  strings.Builder
	outcome Outcome
	failure string
	done    chan struct{}
}

// NewResultListener creates a listener that succeeds when any of
// successPatterns appears in the output. Empty patterns are ignored.
func NewResultListener(successPatterns ...string) *ResultListener {
	patterns := make([]string, 0, len(successPatterns))
	seen := make(map[string]bool, len(successPatterns))
	for _, p := range successPatterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		patterns = append(patterns, p)
	}

	overlap := len(FailureMarker)
	for _, p := range patterns {
		overlap = max(overlap, len(p))
	}

	return &ResultListener{
		successPatterns: patterns,
		overlap:         overlap - 1,
		done:            make(chan struct{}),
	}
}

// OnMessage appends message to the output and evaluates the markers. Once
// the outcome has latched the message is discarded.
func (l *ResultListener) OnMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.outcome != Pending {
		return
	}

	start := max(l.output.Len()-l.overlap, 0)
	l.output.WriteString(message)

	buf := l.output.String()
	if l.containsSuccess(buf[start:]) {
		l.settle(Success, "")
		return
	}
	if idx := strings.Index(buf[start:], FailureMarker); idx != -1 {
		l.settle(Failure, buf[start+idx:])
	}
}

func (l *ResultListener) containsSuccess(buf string) bool {
	for _, p := range l.successPatterns {
		if strings.Contains(buf, p) {
			return true
		}
	}
	return false
}

// settle records the terminal outcome and wakes waiters. Callers hold l.mu.
func (l *ResultListener) settle(outcome Outcome, failure string) {
	l.outcome = outcome
	l.failure = failure
	close(l.done)
}

// WaitForResult blocks until the outcome leaves Pending, timeout elapses, or
// ctx is done, and returns the outcome at that moment. It never fails: a
// Pending result means no marker was seen in time. A non-positive timeout
// waits only on ctx.
func (l *ResultListener) WaitForResult(ctx context.Context, timeout time.Duration) Outcome {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-l.done:
	case <-expired:
	case <-ctx.Done():
	}

	return l.Outcome()
}

// Done returns a channel closed on the first transition.
func (l *ResultListener) Done() <-chan struct{} {
	return l.done
}

// Outcome returns the current outcome.
func (l *ResultListener) Outcome() Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcome
}

// IsInitWithSuccess reports whether a success pattern was seen.
func (l *ResultListener) IsInitWithSuccess() bool {
	return l.Outcome() == Success
}

// FailureFound returns the output from the first failure marker onward, as
// accumulated when the failure was detected. ok is false when no failure was
// recorded.
func (l *ResultListener) FailureFound() (detail string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcome != Failure {
		return "", false
	}
	return l.failure, true
}

// Output returns everything received up to and including the message that
// settled the outcome.
func (l *ResultListener) Output() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.output.String()
}

// SuccessPatterns returns the configured success patterns.
func (l *ResultListener) SuccessPatterns() []string {
	return append([]string(nil), l.successPatterns...)
}
