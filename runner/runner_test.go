package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntoineDubuc/conclave/artifact"
	"github.com/AntoineDubuc/conclave/config"
	"github.com/AntoineDubuc/conclave/core"
	"github.com/AntoineDubuc/conclave/engine"
	"github.com/AntoineDubuc/conclave/internal/testutil"
	"github.com/AntoineDubuc/conclave/logging"
	"github.com/AntoineDubuc/conclave/model"
	"github.com/AntoineDubuc/conclave/session"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Active = []string{"a", "b", "c"}
	cfg.Output.Recorder = config.RecorderMemory
	for _, id := range cfg.Active {
		cfg.Participants[id] = config.ParticipantConfig{Provider: core.ProviderMock}
	}
	cfg.Flows["rr"] = config.FlowDefinition{Topology: "round_robin", MaxRounds: 2, CallTimeout: 50 * time.Millisecond}
	cfg.Flows["hub"] = config.FlowDefinition{Topology: "leading", Leader: "a", MaxRounds: 3}
	return cfg
}

func scripted(models ...*testutil.ScriptedModel) ResolveFunc {
	byID := make(map[string]*testutil.ScriptedModel, len(models))
	for _, m := range models {
		byID[m.Info().Name] = m
	}
	return func(ids []string) ([]core.Participant, error) {
		picked := make([]*testutil.ScriptedModel, 0, len(ids))
		for _, id := range ids {
			picked = append(picked, byID[id])
		}
		return testutil.Participants(picked...), nil
	}
}

// blocking returns a model that reports each call on started and then waits
// for its context.
func blocking(id string, started chan<- struct{}) *testutil.ScriptedModel {
	return testutil.NewScriptedModel(id, func(ctx context.Context, _ int, _ model.CompletionRequest) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
}

func newRunner(t *testing.T, optFns ...func(o *Options)) *Runner {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) { o.Logger = logging.NoOpLogger{} }}, optFns...)
	r, err := New(testConfig(), fns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewDefaultsFromConfig(t *testing.T) {
	r, err := New(testConfig())
	require.NoError(t, err)
	assert.IsType(t, &artifact.InMemoryRecorder{}, r.recorder)
	assert.NotNil(t, r.logger)
	assert.Nil(t, r.sem)

	cfg := testConfig()
	cfg.Output.Recorder = "tape"
	_, err = New(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestRunRoundRobin(t *testing.T) {
	rec := artifact.NewInMemoryRecorder()
	a, b, c := testutil.Answers("a"), testutil.Answers("b"), testutil.Answers("c")
	r := newRunner(t, func(o *Options) {
		o.Recorder = rec
		o.Resolve = scripted(a, b, c)
		o.NewRunID = func() string { return "run-1" }
	})

	res, err := r.Run(context.Background(), "rr", "Plan a launch.")
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, core.OutcomeCompleted, res.Outcome)
	assert.Len(t, res.Rounds, 2)
	assert.Equal(t, "memory://run-1", res.Location)
	assert.Empty(t, r.Active())

	assert.Len(t, rec.List("run-1"), 6)
}

func TestRunWithConfiguredMockParticipants(t *testing.T) {
	r := newRunner(t)

	res, err := r.Run(context.Background(), "rr", "Plan a launch.")
	require.NoError(t, err)
	require.Len(t, res.Rounds, 2)
	assert.Len(t, res.Rounds[0].Successes(), 3)
	assert.Contains(t, res.Rounds[0].Successes()["a"], "Mock response from a")
}

func TestRunConfigurationErrors(t *testing.T) {
	r := newRunner(t)

	_, err := r.Run(context.Background(), "missing", "T")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	r.cfg.Flows["broken"] = config.FlowDefinition{Topology: "leading", Leader: "zed"}
	_, err = r.Run(context.Background(), "broken", "T")
	assert.ErrorIs(t, err, core.ErrUnknownLeader)
	assert.Empty(t, r.Active())
}

func TestCancelActiveRun(t *testing.T) {
	started := make(chan struct{}, 16)
	r := newRunner(t, func(o *Options) {
		o.Resolve = scripted(blocking("a", started), blocking("b", started), blocking("c", started))
		o.NewRunID = func() string { return "run-cancel" }
	})

	var (
		res *core.FlowResult
		err error
		wg  sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err = r.Run(context.Background(), "rr", "T")
	}()

	<-started
	assert.Equal(t, []string{"run-cancel"}, r.Active())
	require.NoError(t, r.Cancel("run-cancel"))
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, core.OutcomeCancelled, res.Outcome)
	assert.Empty(t, res.Rounds)
	assert.Empty(t, r.Active())

	assert.ErrorIs(t, r.Cancel("run-cancel"), ErrRunNotFound)
}

func TestMaxConcurrentRuns(t *testing.T) {
	started := make(chan struct{}, 16)
	ids := make(chan string, 2)
	ids <- "first"
	ids <- "second"
	r := newRunner(t, func(o *Options) {
		o.MaxConcurrentRuns = 1
		o.Resolve = scripted(blocking("a", started), blocking("b", started), blocking("c", started))
		o.NewRunID = func() string { return <-ids }
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), "rr", "T")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, "rr", "T")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, r.Cancel("first"))
	<-done
}

func TestStepSession(t *testing.T) {
	a, b, c := testutil.Answers("a"), testutil.Answers("b"), testutil.Answers("c")
	rec := artifact.NewInMemoryRecorder()
	r := newRunner(t, func(o *Options) {
		o.Recorder = rec
		o.Resolve = scripted(a, b, c)
		o.NewRunID = func() string { return "step-1" }
	})
	ctx := context.Background()

	state, err := r.Start(ctx, "hub", "Design it.")
	require.NoError(t, err)
	assert.Equal(t, "step-1", state.RunID)
	assert.Equal(t, core.PhaseNotStarted, state.Phase)
	assert.Equal(t, []string{"step-1"}, r.Active())
	assert.Zero(t, a.CallCount())

	state, err = r.Step(ctx, "step-1", nil)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRound1, state.Phase)

	state, err = r.Step(ctx, "step-1", nil)
	require.NoError(t, err)
	require.True(t, state.PendingReview)

	// Snapshots are detached from the session.
	state.Synthesis = "tampered"
	current, err := r.State("step-1")
	require.NoError(t, err)
	assert.Equal(t, "a answer 2", current.Synthesis)

	edit := "reviewed plan"
	state, err = r.Step(ctx, "step-1", &edit)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseContributorResponse, state.Phase)
	assert.Contains(t, b.Prompts()[1], "reviewed plan")

	state, err = r.Approve(ctx, "step-1")
	require.NoError(t, err)
	assert.True(t, state.Complete)
	assert.Equal(t, "a answer 3", state.Result.FinalSynthesis())
	assert.Empty(t, r.Active())

	_, err = r.Step(ctx, "step-1", nil)
	assert.ErrorIs(t, err, core.ErrFlowFinished)

	_, err = rec.Get("step-1", artifact.FinalSynthesisName)
	require.NoError(t, err)

	require.NoError(t, r.Forget("step-1"))
	_, err = r.Step(ctx, "step-1", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, r.Forget("step-1"), ErrRunNotFound)
}

func TestStartRejectsRoundRobin(t *testing.T) {
	r := newRunner(t)

	_, err := r.Start(context.Background(), "rr", "T")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Empty(t, r.Active())
}

func TestCancelStepSession(t *testing.T) {
	a, b, c := testutil.Answers("a"), testutil.Answers("b"), testutil.Answers("c")
	r := newRunner(t, func(o *Options) {
		o.Resolve = scripted(a, b, c)
		o.NewRunID = func() string { return "step-2" }
	})
	ctx := context.Background()

	_, err := r.Start(ctx, "hub", "T")
	require.NoError(t, err)
	_, err = r.Step(ctx, "step-2", nil)
	require.NoError(t, err)

	require.NoError(t, r.Cancel("step-2"))

	state, err := r.Step(ctx, "step-2", nil)
	require.NoError(t, err)
	assert.True(t, state.Cancelled)
	assert.Equal(t, core.OutcomeCancelled, state.Result.Outcome)
	assert.Len(t, state.Result.Rounds, 1)
	assert.Equal(t, 1, a.CallCount())
	assert.Empty(t, r.Active())
}

func TestRunnerCallbacks(t *testing.T) {
	cm := engine.NewCallbackManager()
	var mu sync.Mutex
	flows := 0
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterFlow, func(_ context.Context, cc *engine.CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		flows++
		assert.Equal(t, "run-cb", cc.RunID)
		return nil
	}))

	r := newRunner(t, func(o *Options) {
		o.Callbacks = cm
		o.Resolve = scripted(testutil.Answers("a"), testutil.Answers("b"), testutil.Answers("c"))
		o.NewRunID = func() string { return "run-cb" }
	})

	_, err := r.Run(context.Background(), "rr", "T")
	require.NoError(t, err)
	assert.Equal(t, 1, flows)
}

func TestStepSessionUsesSessionStore(t *testing.T) {
	store := session.NewInMemoryStore()
	r := newRunner(t, func(o *Options) {
		o.SessionStore = store
		o.Resolve = scripted(testutil.Answers("a"), testutil.Answers("b"), testutil.Answers("c"))
		o.NewRunID = func() string { return "stored" }
	})
	ctx := context.Background()

	_, err := r.Start(ctx, "hub", "T")
	require.NoError(t, err)
	assert.Equal(t, []string{"stored"}, store.List())

	_, err = r.Step(ctx, "stored", nil)
	require.NoError(t, err)

	saved, err := store.Get("stored")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRound1, saved.Phase)
	assert.Len(t, saved.Contributions, 3)

	require.NoError(t, r.Forget("stored"))
	assert.Empty(t, store.List())

	_, err = r.State("stored")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
