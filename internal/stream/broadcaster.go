package stream

import "sync"

// Broadcaster fans each output block out to its listeners and then forwards
// it to a delegate Sink.
//
// Listeners run synchronously on the caller's goroutine, so a slow listener
// stalls the reader. Listeners are expected to do O(len(block)) work.
type Broadcaster struct {
	delegate Sink

	mu        sync.RWMutex
	listeners []*ResultListener
}

// NewBroadcaster creates a Broadcaster forwarding to delegate. A nil
// delegate discards output.
func NewBroadcaster(delegate Sink) *Broadcaster {
	if delegate == nil {
		delegate = Discard
	}
	return &Broadcaster{delegate: delegate}
}

// AddListener registers l and returns it for chaining. Listeners are invoked
// in registration order.
func (b *Broadcaster) AddListener(l *ResultListener) *ResultListener {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
	return l
}

// Process delivers block to every listener, then to the delegate.
func (b *Broadcaster) Process(block string) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()

	for _, l := range listeners {
		l.OnMessage(block)
	}
	b.delegate.Process(block)
}

// OnProcessed forwards stream completion to the delegate.
func (b *Broadcaster) OnProcessed() {
	b.delegate.OnProcessed()
}

// Listeners returns a copy of the registered listeners.
func (b *Broadcaster) Listeners() []*ResultListener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*ResultListener(nil), b.listeners...)
}
