// Package service provides the high-level stagerun operations: run, stage
// and clean.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/launcher"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/stream"
)

// StopTimeout bounds stopping the launched process at the end of a run.
const StopTimeout = 10 * time.Second

// Stager stages and releases distributions.
type Stager interface {
	Materialize(dist distribution.Distribution) (*distribution.ExtractedFileSet, error)
	Release(fs *distribution.ExtractedFileSet)
	ReleaseFromManifest() (bool, error)
}

// Starter launches a staged executable and waits for its startup verdict.
type Starter interface {
	Run(ctx context.Context, fs *distribution.ExtractedFileSet, opts launcher.Options) (*launcher.Process, *launcher.Result, error)
}

// RunService orchestrates stage, launch, verdict and release.
type RunService struct {
	stager  Stager
	starter Starter
	clock   Clock
	logger  logging.Logger
}

// NewRunService creates a RunService with dependency injection.
func NewRunService(stager Stager, starter Starter, clock Clock, logger logging.Logger) *RunService {
	if clock == nil {
		clock = SystemClock
	}
	return &RunService{
		stager:  stager,
		starter: starter,
		clock:   clock,
		logger:  logging.OrNop(logger),
	}
}

// RunRequest contains the parameters of a run.
type RunRequest struct {
	Distribution distribution.Distribution
	Options      launcher.Options
	// Check stops the process right after the verdict.
	Check bool
	// OnVerdict is called with the startup result before the run holds
	// the process open.
	OnVerdict func(*launcher.Result)
}

// RunReport describes a finished run.
type RunReport struct {
	Distribution distribution.Distribution
	FileSet      *distribution.ExtractedFileSet
	Result       *launcher.Result
	StagedAt     time.Time
	FinishedAt   time.Time
	// ExitErr is the process exit error once it ended on its own.
	ExitErr error
}

// Execute stages req.Distribution, launches it and waits for the verdict.
// After a Success verdict without Check, it holds the process until ctx is
// done or the process exits. The file set is always released before
// returning.
//
// A non-Success verdict is reported in the RunReport, not as an error.
func (s *RunService) Execute(ctx context.Context, req RunRequest) (*RunReport, error) {
	report := &RunReport{Distribution: req.Distribution}

	fs, err := s.stager.Materialize(req.Distribution)
	if err != nil {
		return nil, err
	}
	report.FileSet = fs
	report.StagedAt = s.clock.Now()
	defer s.stager.Release(fs)

	proc, res, err := s.starter.Run(ctx, fs, req.Options)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", req.Distribution, err)
	}
	report.Result = res
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), StopTimeout)
		defer cancel()
		if err := proc.Stop(stopCtx); err != nil {
			s.logger.Warn("could not stop process", "attempt", res.AttemptID, "error", err)
		}
	}()

	if req.OnVerdict != nil {
		req.OnVerdict(res)
	}

	if res.Outcome == stream.Success && !req.Check {
		s.logger.Info("holding process until interrupted", "attempt", res.AttemptID, "pid", proc.Pid())
		select {
		case <-ctx.Done():
		case <-proc.Exited():
			report.ExitErr = proc.Wait()
			s.logger.Warn("process exited", "attempt", res.AttemptID, "error", report.ExitErr)
		}
	}

	report.FinishedAt = s.clock.Now()
	return report, nil
}

// Stage materializes dist and leaves it in place; Clean releases it later.
func Stage(stager Stager, dist distribution.Distribution) (*distribution.ExtractedFileSet, error) {
	return stager.Materialize(dist)
}

// CleanResult contains the results of a clean.
type CleanResult struct {
	ManifestFound bool
	// DeferredErr aggregates failures of the deferred deletions run.
	DeferredErr error
}

// DeferredRunner runs pending deferred deletions.
type DeferredRunner interface {
	Run() error
}

// Clean releases whatever the manifest records, then runs the deferred
// deletions registered while doing so.
func Clean(stager Stager, deferred DeferredRunner) (*CleanResult, error) {
	found, err := stager.ReleaseFromManifest()
	if err != nil {
		return nil, fmt.Errorf("release from manifest: %w", err)
	}

	result := &CleanResult{ManifestFound: found}
	if deferred != nil {
		result.DeferredErr = deferred.Run()
	}
	return result, nil
}
