package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/config"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/launcher"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/stream"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/testutil"
)

// fixedClock always reports the same instant.
type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}

func TestClockFunc(t *testing.T) {
	at := time.Date(2025, 1, 16, 14, 30, 22, 0, time.UTC)
	if got := ClockFunc(func() time.Time { return at }).Now(); !got.Equal(at) {
		t.Errorf("ClockFunc.Now() = %v, want %v", got, at)
	}
	before := time.Now()
	if got := SystemClock.Now(); got.Before(before) {
		t.Errorf("SystemClock.Now() = %v, before %v", got, before)
	}
}

var testDist = distribution.Distribution{Name: "server", Version: "1.0.0", Platform: "linux-amd64"}

// mockStager implements Stager for testing.
type mockStager struct {
	materializeErr error
	manifestFound  bool
	manifestErr    error
	released       []*distribution.ExtractedFileSet
}

func (m *mockStager) Materialize(dist distribution.Distribution) (*distribution.ExtractedFileSet, error) {
	if m.materializeErr != nil {
		return nil, m.materializeErr
	}
	return &distribution.ExtractedFileSet{BaseDir: "/stage"}, nil
}

func (m *mockStager) Release(fs *distribution.ExtractedFileSet) {
	m.released = append(m.released, fs)
}

func (m *mockStager) ReleaseFromManifest() (bool, error) {
	return m.manifestFound, m.manifestErr
}

// mockStarter implements Starter for testing.
type mockStarter struct {
	err error
}

func (m *mockStarter) Run(ctx context.Context, fs *distribution.ExtractedFileSet, opts launcher.Options) (*launcher.Process, *launcher.Result, error) {
	return nil, nil, m.err
}

// mockDeferred implements DeferredRunner for testing.
type mockDeferred struct {
	err   error
	calls int
}

func (m *mockDeferred) Run() error {
	m.calls++
	return m.err
}

func TestRunService_MaterializeError(t *testing.T) {
	boom := errors.New("disk full")
	stager := &mockStager{materializeErr: boom}
	svc := NewRunService(stager, &mockStarter{}, nil, nil)

	_, err := svc.Execute(context.Background(), RunRequest{Distribution: testDist})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if len(stager.released) != 0 {
		t.Error("nothing was staged, nothing should be released")
	}
}

func TestRunService_LaunchErrorReleases(t *testing.T) {
	boom := errors.New("exec format error")
	stager := &mockStager{}
	svc := NewRunService(stager, &mockStarter{err: boom}, nil, nil)

	_, err := svc.Execute(context.Background(), RunRequest{Distribution: testDist})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if len(stager.released) != 1 {
		t.Errorf("released %d file sets, want 1", len(stager.released))
	}
}

func TestClean(t *testing.T) {
	deferred := &mockDeferred{err: errors.New("still busy")}
	result, err := Clean(&mockStager{manifestFound: true}, deferred)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !result.ManifestFound || result.DeferredErr == nil || deferred.calls != 1 {
		t.Errorf("Clean() = %+v, deferred calls %d", result, deferred.calls)
	}

	boom := errors.New("corrupt manifest")
	if _, err := Clean(&mockStager{manifestErr: boom}, deferred); !errors.Is(err, boom) {
		t.Errorf("Clean() error = %v, want %v", err, boom)
	}
}

// newArchiveConfig writes a server archive and returns a config for it.
func newArchiveConfig(t *testing.T, script string) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a unix shell")
	}

	env := testutil.SetupTestEnv(t)
	archive := testutil.WriteTarGz(t, filepath.Join(env.ArchiveDir, testDist.String()+".tar.gz"), testutil.ServerArchive(script))
	testutil.WriteChecksum(t, archive)

	return &config.Config{
		Distribution: config.DistributionConfig{
			Name:       testDist.Name,
			Version:    testDist.Version,
			Platform:   testDist.Platform,
			Archives:   env.ArchiveDir,
			Executable: "bin/server",
		},
		Staging: config.StagingConfig{Dir: env.StagingDir, Lock: true, Manifest: true},
	}
}

func TestRunService_CheckRun(t *testing.T) {
	cfg := newArchiveConfig(t, "echo booting\necho 'ready for connections'\nexec sleep 30\n")
	deleter := cleanup.NewDeleter()
	manager, err := NewManager(cfg, deleter, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	stamp := time.Date(2025, 1, 16, 14, 30, 22, 0, time.UTC)
	clock := fixedClock{at: stamp}
	svc := NewRunService(manager, launcher.New(nil), clock, nil)

	var verdict *launcher.Result
	report, err := svc.Execute(context.Background(), RunRequest{
		Distribution: cfg.Dist(),
		Options: launcher.Options{
			SuccessPatterns: []string{"ready for connections"},
			Timeout:         10 * time.Second,
		},
		Check:     true,
		OnVerdict: func(r *launcher.Result) { verdict = r },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Result.Outcome != stream.Success {
		t.Errorf("Outcome = %v, output %q", report.Result.Outcome, report.Result.Output)
	}
	if verdict != report.Result {
		t.Error("OnVerdict not called with the run result")
	}
	if !report.StagedAt.Equal(stamp) || !report.FinishedAt.Equal(stamp) {
		t.Errorf("timestamps = %v / %v", report.StagedAt, report.FinishedAt)
	}

	for _, p := range []string{cfg.Staging.Dir, cfg.Staging.Dir + ".manifest.yaml", cfg.Staging.Dir + ".lock"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s left behind after run", p)
		}
	}
	if err := deleter.Run(); err != nil {
		t.Errorf("deferred deletions failed: %v", err)
	}
}

func TestRunService_HoldUntilCancelled(t *testing.T) {
	cfg := newArchiveConfig(t, "echo 'ready for connections'\nexec sleep 30\n")
	manager, err := NewManager(cfg, cleanup.NewDeleter(), nil)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewRunService(manager, launcher.New(nil), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	report, err := svc.Execute(ctx, RunRequest{
		Distribution: cfg.Dist(),
		Options: launcher.Options{
			SuccessPatterns: []string{"ready for connections"},
			Timeout:         10 * time.Second,
		},
		OnVerdict: func(*launcher.Result) { cancel() },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if report.Result.Outcome != stream.Success {
		t.Errorf("Outcome = %v", report.Result.Outcome)
	}
	if _, err := os.Stat(cfg.Staging.Dir); !os.IsNotExist(err) {
		t.Error("staging dir left behind after run")
	}
}

func TestRunService_FailureVerdict(t *testing.T) {
	cfg := newArchiveConfig(t, "echo '[ERROR] Aborting'\nexit 1\n")
	manager, err := NewManager(cfg, cleanup.NewDeleter(), nil)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewRunService(manager, launcher.New(nil), nil, nil)

	report, err := svc.Execute(context.Background(), RunRequest{
		Distribution: cfg.Dist(),
		Options:      launcher.Options{SuccessPatterns: []string{"ready"}, Timeout: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if report.Result.Outcome != stream.Failure {
		t.Errorf("Outcome = %v", report.Result.Outcome)
	}
}

func TestStageThenClean(t *testing.T) {
	cfg := newArchiveConfig(t, "echo ready\n")
	deleter := cleanup.NewDeleter()
	manager, err := NewManager(cfg, deleter, nil)
	if err != nil {
		t.Fatal(err)
	}

	fs, err := Stage(manager, cfg.Dist())
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if !fs.ExecutableExists() {
		t.Fatal("executable missing after Stage()")
	}

	// Clean runs in a later process with a fresh manager.
	next, err := NewManager(cfg, deleter, nil)
	if err != nil {
		t.Fatal(err)
	}
	result, err := Clean(next, deleter)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !result.ManifestFound || result.DeferredErr != nil {
		t.Errorf("Clean() = %+v", result)
	}
	if _, err := os.Stat(cfg.Staging.Dir); !os.IsNotExist(err) {
		t.Error("staging dir left behind after Clean()")
	}
}
