package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntoineDubuc/conclave/artifact"
	"github.com/AntoineDubuc/conclave/core"
)

var _ core.Recorder = (*Recorder)(nil)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "runs", "conclave.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorderRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(t)

	loc, err := r.Begin(ctx, "run-1", "leading-architect")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://run-1", loc)

	// Begin is idempotent.
	_, err = r.Begin(ctx, "run-1", "leading-architect")
	require.NoError(t, err)

	recs := []core.Record{
		{RunID: "run-1", Round: 1, InstanceID: "b", DisplayName: "B", Provider: "openai", Phase: core.PhaseRound1, Content: "b1"},
		{RunID: "run-1", Round: 1, InstanceID: "a", DisplayName: "A", Provider: "anthropic", Phase: core.PhaseRound1, Content: "a1"},
		{RunID: "run-1", Round: 2, InstanceID: "a", DisplayName: "A", Phase: core.PhaseLeaderSynthesis, Content: "draft"},
		{RunID: "run-1", Round: 2, InstanceID: "a", DisplayName: "A", Phase: core.PhaseLeaderSynthesis, Content: "edited", Edited: true},
		{RunID: "run-1", Round: 3, InstanceID: "a", DisplayName: "A", Phase: core.PhaseFinalSynthesis, Content: "final", Final: true},
	}
	for _, rec := range recs {
		require.NoError(t, r.Write(ctx, rec))
	}

	run, err := r.Run(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "leading-architect", run.FlowName)

	arts, err := r.Artifacts(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, arts, 4)

	assert.Equal(t, "a", arts[0].InstanceID)
	assert.Equal(t, "b", arts[1].InstanceID)
	assert.Equal(t, "edited", arts[2].Content)
	assert.True(t, arts[2].Edited)
	assert.True(t, arts[3].Final)

	h, body, err := artifact.Parse([]byte(arts[3].Markdown))
	require.NoError(t, err)
	assert.Equal(t, "final", h.Round)
	assert.Equal(t, "final\n", body)
}

func TestRecorderMissingRun(t *testing.T) {
	r := newTestRecorder(t)

	run, err := r.Run(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, run)

	arts, err := r.Artifacts(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, arts)
}
