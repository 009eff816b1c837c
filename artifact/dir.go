package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/internal/util"
)

var _ core.RunFinisher = (*DirRecorder)(nil)

// DirRecorder writes each run into its own directory below a base path:
//
//	<base>/run_<YYYY-MM-DD_HH-MM-SS>_<flow>_<runid8>/round_<n>_<instance>.md
//	<base>/run_<YYYY-MM-DD_HH-MM-SS>_<flow>_<runid8>/final_synthesis.md
type DirRecorder struct {
	base string
	now  func() time.Time

	mu   sync.Mutex
	dirs map[string]string // runID -> run directory
}

// DirOptions configures a DirRecorder.
type DirOptions struct {
	// Now overrides the clock used for directory names and timestamps.
	Now func() time.Time
}

// NewDirRecorder returns a recorder rooted at base. The directory is created
// lazily when the first run begins.
func NewDirRecorder(base string, optFns ...func(o *DirOptions)) *DirRecorder {
	opts := DirOptions{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DirRecorder{
		base: base,
		now:  opts.Now,
		dirs: make(map[string]string),
	}
}

// Begin creates the run directory and returns its path.
func (r *DirRecorder) Begin(_ context.Context, runID, flowName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dir, ok := r.dirs[runID]; ok {
		return dir, nil
	}

	flow := core.SanitizeID(flowName)
	if flow == "" {
		flow = "flow"
	}
	name := fmt.Sprintf("run_%s_%s_%s", r.now().Format("2006-01-02_15-04-05"), flow, util.ShortID(runID))
	dir := filepath.Join(r.base, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	r.dirs[runID] = dir
	return dir, nil
}

// Write implements core.Recorder.
func (r *DirRecorder) Write(_ context.Context, rec core.Record) error {
	r.mu.Lock()
	dir, ok := r.dirs[rec.RunID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, rec.RunID)
	}

	data, err := Render(rec, r.now())
	if err != nil {
		return err
	}

	path := filepath.Join(dir, Name(rec))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Finish implements core.RunFinisher. It drops the run from the recorder;
// the files on disk are kept.
func (r *DirRecorder) Finish(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirs, runID)
	return nil
}

// Dir returns the directory of a begun, unfinished run.
func (r *DirRecorder) Dir(runID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, ok := r.dirs[runID]
	return dir, ok
}
