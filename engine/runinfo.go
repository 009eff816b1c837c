package engine

import (
	"context"

	"github.com/AntoineDubuc/conclave/core"
)

// RunInfo identifies the run a round belongs to. It travels in the context
// so callbacks fired deep inside the executor can label their output.
type RunInfo struct {
	RunID    string
	FlowName string
	Topology core.Topology
}

type runInfoKey struct{}

// WithRunInfo returns a context carrying info.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the run info stored in ctx, or the zero value.
func RunInfoFrom(ctx context.Context) RunInfo {
	info, _ := ctx.Value(runInfoKey{}).(RunInfo)
	return info
}
