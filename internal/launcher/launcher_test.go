package launcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/stream"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for the pump goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func scriptFileSet(t *testing.T, script string) *distribution.ExtractedFileSet {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a unix shell")
	}

	dir := t.TempDir()
	exe := filepath.Join(dir, "bin", "server")
	if err := os.MkdirAll(filepath.Dir(exe), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return &distribution.ExtractedFileSet{BaseDir: dir, Executable: exe}
}

func TestRun_Success(t *testing.T) {
	fs := scriptFileSet(t, "echo starting up\necho '... ready for connections port 3306'\nexec sleep 30\n")
	echo := &syncBuffer{}
	logger := &testutil.RecordingLogger{}

	p, res, err := New(logger).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"ready for connections"},
		Timeout:         10 * time.Second,
		Echo:            echo,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Stop(context.Background())

	if res.Outcome != stream.Success {
		t.Fatalf("Outcome = %v, output:\n%s", res.Outcome, res.Output)
	}
	if res.AttemptID == "" || res.AttemptID != p.AttemptID {
		t.Errorf("AttemptID = %q, process attempt %q", res.AttemptID, p.AttemptID)
	}
	if res.Elapsed >= 10*time.Second {
		t.Errorf("verdict took the whole timeout: %v", res.Elapsed)
	}
	if !strings.Contains(res.Output, "starting up") {
		t.Errorf("Output = %q", res.Output)
	}

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case <-p.Exited():
	default:
		t.Error("process still running after Stop()")
	}
	if !strings.Contains(echo.String(), "ready for connections") {
		t.Errorf("echo = %q", echo.String())
	}
	if len(logger.Entries("INFO")) == 0 {
		t.Error("expected info log entries")
	}
}

func TestRun_LongLineBeforeMarker(t *testing.T) {
	fs := scriptFileSet(t, "head -c 2097152 /dev/zero | tr '\\0' x\necho\necho 'ready for connections'\nexec sleep 30\n")

	p, res, err := New(nil).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"ready for connections"},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Stop(context.Background())

	if res.Outcome != stream.Success {
		t.Fatalf("Outcome = %v, failure = %q", res.Outcome, res.Failure)
	}
	if p.hasExited() {
		t.Error("process exited after writing a long line")
	}
}

func TestRun_FailureMarker(t *testing.T) {
	fs := scriptFileSet(t, "echo starting\necho '[ERROR] Can'\"'\"'t create test file'\nexec sleep 30\n")

	p, res, err := New(nil).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"ready for connections"},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Stop(context.Background())

	if res.Outcome != stream.Failure {
		t.Fatalf("Outcome = %v", res.Outcome)
	}
	if !strings.HasPrefix(res.Failure, stream.FailureMarker) {
		t.Errorf("Failure = %q, want it to start at the marker", res.Failure)
	}
}

func TestRun_ExitBeforeMarker(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"non-zero exit", "echo boom\nexit 3\n", "process exited: exit status 3"},
		{"clean exit", "echo done\n", "process exited: exit status 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := scriptFileSet(t, tt.script)
			p, res, err := New(nil).Run(context.Background(), fs, Options{
				SuccessPatterns: []string{"ready"},
				Timeout:         10 * time.Second,
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Outcome != stream.Failure {
				t.Fatalf("Outcome = %v", res.Outcome)
			}
			if res.Failure != tt.want {
				t.Errorf("Failure = %q, want %q", res.Failure, tt.want)
			}
			_ = p.Wait()
		})
	}
}

func TestRun_MarkerJustBeforeExit(t *testing.T) {
	fs := scriptFileSet(t, "echo ready\nexit 0\n")
	p, res, err := New(nil).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"ready"},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	_ = p.Wait()
	if res.Outcome != stream.Success {
		t.Errorf("Outcome = %v, want Success", res.Outcome)
	}
}

func TestRun_TimeoutIsPending(t *testing.T) {
	fs := scriptFileSet(t, "echo still booting\nexec sleep 30\n")
	p, res, err := New(nil).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"ready"},
		Timeout:         200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Stop(context.Background())

	if res.Outcome != stream.Pending {
		t.Errorf("Outcome = %v, want Pending", res.Outcome)
	}
	if res.Failure != "" {
		t.Errorf("Failure = %q", res.Failure)
	}
}

func TestProcess_Await_Cancel(t *testing.T) {
	fs := scriptFileSet(t, "exec sleep 30\n")
	p, err := New(nil).Start(context.Background(), fs, Options{SuccessPatterns: []string{"ready"}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res := p.Await(ctx, time.Minute)
	if res.Outcome != stream.Pending {
		t.Errorf("Outcome = %v, want Pending", res.Outcome)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Await() ignored cancellation")
	}
}

func TestProcess_Listen(t *testing.T) {
	fs := scriptFileSet(t, "echo accepting connections\nsleep 1\necho replication ready\nexec sleep 30\n")
	p, res, err := New(nil).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"accepting connections"},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Stop(context.Background())
	if res.Outcome != stream.Success {
		t.Fatalf("Outcome = %v", res.Outcome)
	}

	replica := p.Listen("replication ready")
	if got := replica.WaitForResult(context.Background(), 10*time.Second); got != stream.Success {
		t.Errorf("second listener outcome = %v", got)
	}
	if strings.Contains(replica.Output(), "accepting connections") {
		t.Error("late listener saw output from before it was registered")
	}
	if p.Listener().Outcome() != stream.Success {
		t.Error("start listener changed outcome")
	}
}

func TestProcess_StopKillsChildren(t *testing.T) {
	fs := scriptFileSet(t, "sleep 30 &\necho ready\nwait\n")
	p, res, err := New(nil).Run(context.Background(), fs, Options{
		SuccessPatterns: []string{"ready"},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != stream.Success {
		t.Fatalf("Outcome = %v", res.Outcome)
	}

	children := descendants(context.Background(), int32(p.Pid()))
	if len(children) == 0 {
		t.Fatal("expected a child process")
	}

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for _, c := range children {
		for {
			if !alive(c) {
				break
			}
			if time.Now().After(deadline) {
				t.Errorf("child %d still running after Stop()", c.Pid)
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func TestStart_Errors(t *testing.T) {
	if _, err := New(nil).Start(context.Background(), nil, Options{}); !errors.Is(err, ErrNoExecutable) {
		t.Errorf("Start(nil) error = %v", err)
	}

	fs := &distribution.ExtractedFileSet{BaseDir: t.TempDir(), Executable: filepath.Join(t.TempDir(), "missing")}
	if _, err := New(nil).Start(context.Background(), fs, Options{}); !errors.Is(err, ErrNoExecutable) {
		t.Errorf("Start(missing) error = %v", err)
	}

	var p *Process
	if err := p.Stop(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() on nil process error = %v", err)
	}
}

func TestStart_EnvAndDir(t *testing.T) {
	fs := scriptFileSet(t, "echo \"dir=$(pwd) greeting=$GREETING\"\n")
	p, res, err := New(nil).Run(context.Background(), fs, Options{
		Env:             []string{"GREETING=hello", "PATH=" + os.Getenv("PATH")},
		SuccessPatterns: []string{"greeting=hello"},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	_ = p.Wait()

	if res.Outcome != stream.Success {
		t.Fatalf("Outcome = %v, output %q", res.Outcome, res.Output)
	}
	realBase, _ := filepath.EvalSymlinks(fs.BaseDir)
	if !strings.Contains(res.Output, "dir="+fs.BaseDir) && !strings.Contains(res.Output, "dir="+realBase) {
		t.Errorf("Output = %q, want working dir %s", res.Output, fs.BaseDir)
	}
}

// alive reports whether c is running and not a zombie awaiting reaping.
func alive(c *process.Process) bool {
	running, err := c.IsRunning()
	if err != nil || !running {
		return false
	}
	status, err := c.Status()
	if err != nil {
		return false
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}
