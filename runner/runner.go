package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/AntoineDubuc/conclave/config"
	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
	"github.com/AntoineDubuc/conclave/flow"
	"github.com/AntoineDubuc/conclave/internal/util"
	"github.com/AntoineDubuc/conclave/logging"
	"github.com/AntoineDubuc/conclave/session"
)

// ErrRunNotFound is returned for run IDs the runner does not track.
var ErrRunNotFound = errors.New("run not found")

// ResolveFunc builds the participants with the given IDs.
type ResolveFunc func(ids []string) ([]core.Participant, error)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits blocking runs executing at once. Zero means unlimited.
	MaxConcurrentRuns int
	// Recorder persists run output. Defaults to the configured recorder.
	Recorder core.Recorder
	// SessionStore keeps step-mode state between steps. Defaults to in-memory.
	SessionStore core.SessionStore
	// Logger defaults to the configured logger.
	Logger logging.Logger
	// Callbacks receive round and flow notifications for every run.
	Callbacks *engine.CallbackManager
	// Resolve builds participants. Defaults to config.Config.BuildParticipants.
	Resolve ResolveFunc
	// NewRunID generates run identifiers. Defaults to random UUIDs.
	NewRunID func() string
}

// Runner executes named flows from a configuration. It tracks active runs
// so each can be cancelled on its own, and holds step-mode sessions between
// calls. Public methods are safe for concurrent use.
type Runner struct {
	cfg       *config.Config
	recorder  core.Recorder
	store     core.SessionStore
	logger    logging.Logger
	callbacks *engine.CallbackManager
	executor  *engine.Executor
	resolve   ResolveFunc
	newRunID  func() string
	sem       *semaphore.Weighted

	mu         sync.RWMutex
	activeRuns map[string]*activeRun
	steppers   map[string]*stepper
}

type activeRun struct {
	cancel context.CancelFunc
	signal *engine.Signal
}

// stepper drives one step-mode run; its state lives in the session store.
type stepper struct {
	mu     sync.Mutex
	engine *flow.Engine
	signal *engine.Signal
}

// New constructs a Runner for cfg with optional overrides.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Resolve:      cfg.BuildParticipants,
		NewRunID:     util.NewID,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		l, err := cfg.Logger()
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}
	if opts.Recorder == nil {
		rec, err := cfg.Recorder()
		if err != nil {
			return nil, err
		}
		opts.Recorder = rec
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Resolve == nil {
		opts.Resolve = cfg.BuildParticipants
	}
	if opts.NewRunID == nil {
		opts.NewRunID = util.NewID
	}

	r := &Runner{
		cfg:       cfg,
		recorder:  opts.Recorder,
		store:     opts.SessionStore,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
		resolve:   opts.Resolve,
		newRunID:  opts.NewRunID,
		executor: engine.NewExecutor(func(o *engine.Options) {
			o.Logger = opts.Logger
			o.Callbacks = opts.Callbacks
		}),
		activeRuns: make(map[string]*activeRun),
		steppers:   make(map[string]*stepper),
	}
	if opts.MaxConcurrentRuns > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentRuns))
	}

	return r, nil
}

// Run executes the named flow to completion. Leader syntheses are accepted
// without review.
func (r *Runner) Run(ctx context.Context, flowName, task string) (*core.FlowResult, error) {
	fc, participants, err := r.prepare(flowName)
	if err != nil {
		return nil, err
	}

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for run slot: %w", err)
		}
		defer r.sem.Release(1)
	}

	runID := r.newRunID()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := engine.NewSignal()
	r.mu.Lock()
	r.activeRuns[runID] = &activeRun{cancel: cancel, signal: sig}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	r.logger.Info("run started", "run_id", runID, "flow", flowName, "topology", fc.Topology, "participants", len(participants))

	return r.engine(runID, sig).Run(ctx, fc, task, participants)
}

// Start opens a step-mode session for a hub-and-spoke flow. No participant
// is called until the first Step.
func (r *Runner) Start(ctx context.Context, flowName, task string) (*core.FlowState, error) {
	fc, participants, err := r.prepare(flowName)
	if err != nil {
		return nil, err
	}
	if fc.Topology != core.TopologyHubAndSpoke {
		return nil, fmt.Errorf("%w: flow %q is not hub-and-spoke and cannot be stepped", core.ErrInvalidConfig, flowName)
	}

	runID := r.newRunID()
	sig := engine.NewSignal()
	eng := r.engine(runID, sig)

	state, err := eng.InitStepState(ctx, fc, task, participants)
	if err != nil {
		return nil, err
	}

	if err := r.store.Save(state); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	r.mu.Lock()
	r.steppers[runID] = &stepper{engine: eng, signal: sig}
	r.mu.Unlock()

	r.logger.Info("step session started", "run_id", runID, "flow", flowName, "leader", fc.Leader)

	return state, nil
}

// Step advances a step-mode session by one step. A non-nil edit replaces a
// pending leader synthesis. The returned state is a snapshot.
func (r *Runner) Step(ctx context.Context, runID string, edit *string) (*core.FlowState, error) {
	return r.withSession(runID, func(s *stepper, state *core.FlowState) error {
		_, err := s.engine.StepOnce(ctx, state, edit)
		return err
	})
}

// Approve accepts a pending synthesis unchanged and advances the session.
func (r *Runner) Approve(ctx context.Context, runID string) (*core.FlowState, error) {
	return r.withSession(runID, func(s *stepper, state *core.FlowState) error {
		_, err := s.engine.Approve(ctx, state)
		return err
	})
}

// State returns a snapshot of a step-mode session.
func (r *Runner) State(runID string) (*core.FlowState, error) {
	state, err := r.store.Get(runID)
	if errors.Is(err, core.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return state, err
}

// Forget drops a step-mode session. Unfinished sessions are cancelled first.
func (r *Runner) Forget(runID string) error {
	r.mu.Lock()
	s, ok := r.steppers[runID]
	delete(r.steppers, runID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	s.signal.Cancel()

	if fin, ok := r.recorder.(core.RunFinisher); ok {
		if err := fin.Finish(context.Background(), runID); err != nil {
			r.logger.Warn("recorder finish failed", "run_id", runID, "error", err)
		}
	}

	if err := r.store.Delete(runID); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cancel cancels an active run or step session by ID. A cancelled blocking
// run stops before its next round; a cancelled session finishes on its next
// Step.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	run, running := r.activeRuns[runID]
	s, stepping := r.steppers[runID]
	r.mu.RUnlock()

	switch {
	case running:
		run.signal.Cancel()
		run.cancel()
	case stepping:
		s.signal.Cancel()
	default:
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	r.logger.Info("run cancel requested", "run_id", runID)
	return nil
}

// Active returns the IDs of blocking runs in progress and unfinished step
// sessions, sorted.
func (r *Runner) Active() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.activeRuns)+len(r.steppers))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	stepping := make([]string, 0, len(r.steppers))
	for id := range r.steppers {
		stepping = append(stepping, id)
	}
	r.mu.RUnlock()

	for _, id := range stepping {
		state, err := r.store.Get(id)
		if err == nil && !state.Finished() {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	return ids
}

// Close releases the recorder when it holds resources.
func (r *Runner) Close() error {
	if c, ok := r.recorder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// withSession loads the session state, applies fn and saves the result.
// Steps of one session are serialized.
func (r *Runner) withSession(runID string, fn func(s *stepper, state *core.FlowState) error) (*core.FlowState, error) {
	r.mu.RLock()
	s, ok := r.steppers[runID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := r.store.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if err := fn(s, state); err != nil {
		return state, err
	}
	if err := r.store.Save(state); err != nil {
		return state, fmt.Errorf("save session: %w", err)
	}
	return state, nil
}

func (r *Runner) prepare(flowName string) (core.FlowConfig, []core.Participant, error) {
	fc, err := r.cfg.FlowConfig(flowName)
	if err != nil {
		return core.FlowConfig{}, nil, err
	}
	ids, err := r.cfg.FlowParticipants(flowName)
	if err != nil {
		return core.FlowConfig{}, nil, err
	}
	participants, err := r.resolve(ids)
	if err != nil {
		return core.FlowConfig{}, nil, err
	}
	return fc, participants, nil
}

func (r *Runner) engine(runID string, sig *engine.Signal) *flow.Engine {
	return flow.New(func(o *flow.Options) {
		o.Executor = r.executor
		o.Recorder = r.recorder
		o.Signal = sig
		o.Callbacks = r.callbacks
		o.Logger = r.logger
		o.NewRunID = func() string { return runID }
	})
}
