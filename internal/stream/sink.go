package stream

import (
	"io"
	"strings"
	"sync"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
)

// Sink consumes blocks of process output.
type Sink interface {
	// Process handles one block of output, in receipt order.
	Process(block string)
	// OnProcessed signals that the stream has completed.
	OnProcessed()
}

// Discard is a Sink that drops everything.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Process(string) {}
func (discardSink) OnProcessed()   {}

// WriterSink returns a Sink that writes every block to w. Write errors are
// ignored; the sink is a best-effort echo of the process output.
func WriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *writerSink) Process(block string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, block)
}

func (s *writerSink) OnProcessed() {}

// LoggerSink returns a Sink that logs every non-empty block at debug level
// under the given process name.
func LoggerSink(logger logging.Logger, name string) Sink {
	return &loggerSink{logger: logging.OrNop(logger), name: name}
}

type loggerSink struct {
	logger logging.Logger
	name   string
}

func (s *loggerSink) Process(block string) {
	line := strings.TrimRight(block, "\r\n")
	if line == "" {
		return
	}
	s.logger.Debug("process output", "process", s.name, "line", line)
}

func (s *loggerSink) OnProcessed() {
	s.logger.Debug("process output closed", "process", s.name)
}

// Tee returns a Sink that forwards to each of sinks in order.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

type teeSink []Sink

func (t teeSink) Process(block string) {
	for _, s := range t {
		s.Process(block)
	}
}

func (t teeSink) OnProcessed() {
	for _, s := range t {
		s.OnProcessed()
	}
}
