package cleanup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
)

// Holder is a process that has a file open.
type Holder struct {
	PID  int32
	Name string
}

// String renders the holder as "name(pid)".
func (h Holder) String() string {
	return fmt.Sprintf("%s(%d)", h.Name, h.PID)
}

// Holders lists processes that hold path open. Processes whose open files
// cannot be read (permission, exited meanwhile) are skipped.
func Holders(ctx context.Context, path string) ([]Holder, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var holders []Holder
	for _, p := range procs {
		if ctx.Err() != nil {
			return holders, ctx.Err()
		}

		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if filepath.Clean(f.Path) != target {
				continue
			}
			name, _ := p.NameWithContext(ctx)
			holders = append(holders, Holder{PID: p.Pid, Name: name})
			break
		}
	}

	return holders, nil
}
