package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntoineDubuc/conclave/core"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func TestDirRecorderLayout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	r := NewDirRecorder(base, func(o *DirOptions) { o.Now = fixedClock })

	loc, err := r.Begin(ctx, "0123456789abcdef", "Basic Ideator")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run_2026-03-14_09-26-53_basic_ideator_01234567"), loc)

	again, err := r.Begin(ctx, "0123456789abcdef", "Basic Ideator")
	require.NoError(t, err)
	assert.Equal(t, loc, again)

	require.NoError(t, r.Write(ctx, core.Record{
		RunID: "0123456789abcdef", Round: 1, InstanceID: "claude", DisplayName: "Claude",
		Provider: "anthropic", Phase: core.PhaseRound1, Content: "first idea",
	}))
	require.NoError(t, r.Write(ctx, core.Record{
		RunID: "0123456789abcdef", Round: 3, InstanceID: "claude", DisplayName: "Claude",
		Phase: core.PhaseFinalSynthesis, Content: "the end", Final: true,
	}))

	entries, err := os.ReadDir(loc)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"round_1_claude.md", FinalSynthesisName}, names)

	data, err := os.ReadFile(filepath.Join(loc, "round_1_claude.md"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "# Round 1 - Claude"))

	h, body, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "1", h.Round)
	assert.Equal(t, "anthropic", h.Provider)
	assert.Equal(t, "claude", h.InstanceID)
	assert.Equal(t, string(core.PhaseRound1), h.Phase)
	assert.True(t, fixedClock().Equal(h.Timestamp))
	assert.Equal(t, "first idea\n", body)

	data, err = os.ReadFile(filepath.Join(loc, FinalSynthesisName))
	require.NoError(t, err)
	h, _, err = Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "final", h.Round)
	assert.Contains(t, string(data), "# Final Synthesis")
}

func TestDirRecorderUnknownRun(t *testing.T) {
	r := NewDirRecorder(t.TempDir())
	err := r.Write(context.Background(), core.Record{RunID: "missing", Round: 1, InstanceID: "a"})
	assert.ErrorIs(t, err, ErrUnknownRun)

	_, ok := r.Dir("missing")
	assert.False(t, ok)
}

func TestDirRecorderBeginFailure(t *testing.T) {
	base := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0o644))

	_, err := NewDirRecorder(base).Begin(context.Background(), "run", "f")
	assert.Error(t, err)
}

func TestParseRejectsPlainMarkdown(t *testing.T) {
	_, _, err := Parse([]byte("# just a title\n"))
	assert.ErrorIs(t, err, ErrMissingFrontMatter)

	_, _, err = Parse([]byte("---\nround: 1\n"))
	assert.ErrorIs(t, err, ErrMissingFrontMatter)
}

func TestRenderKeepsBodyVerbatim(t *testing.T) {
	content := "## Plan\n\n---\n\n- step one\n"
	data, err := Render(core.Record{Round: 2, InstanceID: "a", Content: content}, fixedClock())
	require.NoError(t, err)

	_, body, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestDirRecorderKeepsWritesInsideRunDir(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	r := NewDirRecorder(filepath.Join(base, "out"), func(o *DirOptions) { o.Now = fixedClock })

	loc, err := r.Begin(ctx, "run-1", "f")
	require.NoError(t, err)
	require.NoError(t, r.Write(ctx, core.Record{RunID: "run-1", Round: 1, InstanceID: "../../escape", Content: "x"}))

	assert.Equal(t, "round_1_escape.md", Name(core.Record{Round: 1, InstanceID: "../../escape"}))
	_, err = os.Stat(filepath.Join(loc, "round_1_escape.md"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out", entries[0].Name())
}

func TestDirRecorderFinishForgetsRun(t *testing.T) {
	ctx := context.Background()
	r := NewDirRecorder(t.TempDir())

	loc, err := r.Begin(ctx, "run-1", "f")
	require.NoError(t, err)
	require.NoError(t, r.Finish(ctx, "run-1"))

	_, ok := r.Dir("run-1")
	assert.False(t, ok)
	assert.ErrorIs(t, r.Write(ctx, core.Record{RunID: "run-1", Round: 1, InstanceID: "a"}), ErrUnknownRun)

	_, err = os.Stat(loc)
	assert.NoError(t, err, "files stay on disk")
	assert.NoError(t, r.Finish(ctx, "never-begun"))
}
