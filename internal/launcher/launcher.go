package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/stream"
)

const (
	// DefaultStopGrace is how long Stop waits after SIGTERM before killing.
	DefaultStopGrace = 5 * time.Second

	// drainTimeout bounds the wait for buffered output after exit. A
	// background grandchild can keep the pipe open indefinitely.
	drainTimeout = 2 * time.Second
)

var (
	// ErrNoExecutable is returned when the file set has no executable on disk.
	ErrNoExecutable = errors.New("file set has no executable")
	// ErrNotStarted is returned by Process methods on a zero Process.
	ErrNotStarted = errors.New("process not started")
)

// Options configures one start attempt.
type Options struct {
	// Args are passed to the executable.
	Args []string
	// Env is the full child environment. Nil inherits the current one.
	Env []string
	// Dir is the working directory. Empty means the file set's base dir.
	Dir string
	// SuccessPatterns are the markers of a successful startup.
	SuccessPatterns []string
	// Timeout bounds Run's wait. Non-positive waits until exit or ctx.
	Timeout time.Duration
	// Echo receives the child's output. Output is always logged at debug
	// level.
	Echo io.Writer
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Result is the verdict of Run.
type Result struct {
	AttemptID string
	Outcome   stream.Outcome
	// Failure holds the output from the failure marker onward, or why the
	// process ended before any marker.
	Failure string
	Output  string
	// Elapsed is the time from start to verdict.
	Elapsed time.Duration
}

// Launcher starts staged executables.
type Launcher struct {
	logger logging.Logger
}

// New creates a Launcher.
func New(logger logging.Logger) *Launcher {
	return &Launcher{logger: logging.OrNop(logger)}
}

// Process is a running child with its output wired to listeners.
type Process struct {
	AttemptID string

	cmd         *exec.Cmd
	broadcaster *stream.Broadcaster
	listener    *stream.ResultListener
	logger      logging.Logger
	started     time.Time

	group   *errgroup.Group
	exited  chan struct{}
	drained chan struct{}

	mu      sync.Mutex
	exitErr error
}

// Start launches fs.Executable. The returned process already has a listener
// for opts.SuccessPatterns registered, so no output is missed.
func (l *Launcher) Start(ctx context.Context, fs *distribution.ExtractedFileSet, opts Options) (*Process, error) {
	if fs == nil || !fs.ExecutableExists() {
		return nil, ErrNoExecutable
	}

	logger := l.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}
	attemptID := uuid.New().String()

	cmd := exec.CommandContext(ctx, fs.Executable, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	if cmd.Dir == "" {
		cmd.Dir = fs.BaseDir
	}
	setProcessGroup(cmd)
	// Cancelling ctx asks the process to stop instead of killing it outright.
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = DefaultStopGrace

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	sink := stream.LoggerSink(logger, filepath.Base(fs.Executable))
	if opts.Echo != nil {
		sink = stream.Tee(stream.WriterSink(opts.Echo), sink)
	}
	broadcaster := stream.NewBroadcaster(sink)
	listener := broadcaster.AddListener(stream.NewResultListener(opts.SuccessPatterns...))

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", fs.Executable, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	p := &Process{
		AttemptID:   attemptID,
		cmd:         cmd,
		broadcaster: broadcaster,
		listener:    listener,
		logger:      logger,
		started:     time.Now(),
		group:       new(errgroup.Group),
		exited:      make(chan struct{}),
		drained:     make(chan struct{}),
	}

	logger.Info("process started",
		"attempt", attemptID,
		"executable", fs.Executable,
		"pid", cmd.Process.Pid)

	p.group.Go(func() error {
		defer close(p.drained)
		defer pr.Close()
		return stream.Pump(pr, broadcaster)
	})
	p.group.Go(func() error {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.exited)
		logger.Debug("process exited", "attempt", attemptID, "state", cmd.ProcessState.String())
		return nil
	})

	return p, nil
}

// Run starts fs.Executable and waits for a verdict. The process keeps
// running after a Success verdict; the caller stops it.
func (l *Launcher) Run(ctx context.Context, fs *distribution.ExtractedFileSet, opts Options) (*Process, *Result, error) {
	p, err := l.Start(ctx, fs, opts)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Await(ctx, opts.Timeout), nil
}

// Listen registers an additional listener. It only sees output produced
// after registration.
func (p *Process) Listen(successPatterns ...string) *stream.ResultListener {
	return p.broadcaster.AddListener(stream.NewResultListener(successPatterns...))
}

// Listener returns the listener registered at start.
func (p *Process) Listener() *stream.ResultListener {
	return p.listener
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited returns a channel closed when the process has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Await blocks until the start listener settles, the process exits, timeout
// elapses, or ctx is done. A process that exits before any marker yields a
// Failure; a timeout or cancellation yields Pending.
func (p *Process) Await(ctx context.Context, timeout time.Duration) *Result {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.listener.Done():
	case <-p.exited:
		// Output written just before exit may still be in the pipe.
		p.drain()
	case <-expired:
	case <-ctx.Done():
	}

	res := &Result{
		AttemptID: p.AttemptID,
		Outcome:   p.listener.Outcome(),
		Output:    p.listener.Output(),
		Elapsed:   time.Since(p.started),
	}
	if detail, ok := p.listener.FailureFound(); ok {
		res.Failure = detail
	}

	if res.Outcome == stream.Pending && p.hasExited() {
		res.Outcome = stream.Failure
		res.Failure = "process exited: " + p.exitDetail()
	}

	p.logger.Info("startup verdict",
		"attempt", p.AttemptID,
		"outcome", res.Outcome.String(),
		"elapsed", res.Elapsed)
	return res
}

func (p *Process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *Process) drain() {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-p.drained:
	case <-timer.C:
		p.logger.Debug("output still open after exit", "attempt", p.AttemptID)
	}
}

func (p *Process) exitDetail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitErr != nil {
		return p.exitErr.Error()
	}
	return p.cmd.ProcessState.String()
}

// Wait blocks until the process has exited and its output is drained, and
// returns the exit error.
func (p *Process) Wait() error {
	if err := p.group.Wait(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Stop terminates the process and its descendants, children first. It sends
// SIGTERM and kills whatever is left once ctx is done or DefaultStopGrace
// elapses. Stopping an exited process is a no-op.
func (p *Process) Stop(ctx context.Context) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	if p.hasExited() {
		return nil
	}

	children := descendants(ctx, int32(p.cmd.Process.Pid))
	for _, c := range children {
		if err := c.TerminateWithContext(ctx); err != nil {
			p.logger.Debug("could not terminate child", "pid", c.Pid, "error", err)
		}
	}
	if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("could not terminate process", "pid", p.cmd.Process.Pid, "error", err)
	}

	grace := time.NewTimer(DefaultStopGrace)
	defer grace.Stop()

	select {
	case <-p.exited:
	case <-grace.C:
		p.kill(ctx, children)
	case <-ctx.Done():
		p.kill(context.Background(), children)
	}

	<-p.exited
	p.drain()
	p.logger.Info("process stopped", "attempt", p.AttemptID, "pid", p.cmd.Process.Pid)
	return nil
}

func (p *Process) kill(ctx context.Context, children []*process.Process) {
	p.logger.Warn("process did not stop in time, killing", "pid", p.cmd.Process.Pid)
	for _, c := range children {
		_ = c.KillWithContext(ctx)
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("could not kill process", "pid", p.cmd.Process.Pid, "error", err)
	}
}

// descendants returns pid's descendants, deepest first. Lookup failures
// yield what was found so far.
func descendants(ctx context.Context, pid int32) []*process.Process {
	root, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil
	}

	var out []*process.Process
	var walk func(*process.Process)
	walk = func(p *process.Process) {
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			return
		}
		for _, c := range children {
			walk(c)
			out = append(out, c)
		}
	}
	walk(root)
	return out
}
