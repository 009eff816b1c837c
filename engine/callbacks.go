package engine

import (
	"context"
	"fmt"

	"github.com/AntoineDubuc/conclave/core"
)

// CallbackType defines the lifecycle points where callbacks can be executed.
//
// Callbacks hook into the execution pipeline without modifying core logic:
//   - BeforeRound/AfterRound: around one round or step
//   - AfterCall: after each participant call completes (success or failure)
//   - AfterFlow: once a run reaches Done or Cancelled
//
// Callbacks run synchronously. AfterCall callbacks run on the participant's
// goroutine and must be safe for concurrent use.
type CallbackType string

const (
	// CallbackBeforeRound is triggered before a round issues any call.
	CallbackBeforeRound CallbackType = "before_round"

	// CallbackAfterCall is triggered when a single participant call finishes.
	CallbackAfterCall CallbackType = "after_call"

	// CallbackAfterRound is triggered after all calls of a round have returned.
	CallbackAfterRound CallbackType = "after_round"

	// CallbackAfterFlow is triggered once per run with the final result.
	CallbackAfterFlow CallbackType = "after_flow"
)

// CallbackContext carries the information a callback may inspect. Fields
// irrelevant to the callback type are left zero.
type CallbackContext struct {
	RunID    string
	FlowName string
	Topology core.Topology

	// Round and Phase identify the round being executed.
	Round int
	Phase core.Phase

	// Provider is the provider name of the participant behind Response.
	Provider string
	// Response is set for AfterCall.
	Response *core.ParticipantResponse

	// RoundResult is set for AfterRound.
	RoundResult *core.RoundResult

	// Result is set for AfterFlow.
	Result *core.FlowResult

	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Errors returned by a callback are logged by the engine and never alter the
// outcome of a round or run.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackAfterCall,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("%s finished in %s", cc.Response.InstanceID, cc.Response.Duration)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks keyed by type.
//
// Callbacks are executed in registration order. The manager is not safe for
// concurrent registration; once registration is complete, execution is safe
// for concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
//
// Every callback runs even when an earlier one fails; the first error is
// returned. A nil manager is valid and does nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil // No callbacks registered for this type
	}

	callbackCtx.CallbackType = callbackType

	var first error
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil && first == nil {
			first = fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return first
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterRound, func(message string) {
//	    log.Printf("[ENGINE] %s", message)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event with run, round and participant information.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	message := fmt.Sprintf("[%s] run=%s round=%d phase=%s",
		c.callbackType, callbackCtx.RunID, callbackCtx.Round, callbackCtx.Phase)
	if callbackCtx.Response != nil {
		message += fmt.Sprintf(" participant=%s ok=%t", callbackCtx.Response.InstanceID, callbackCtx.Response.OK())
	}
	if callbackCtx.Result != nil {
		message += fmt.Sprintf(" outcome=%s", callbackCtx.Result.Outcome)
	}
	c.logger(message)

	return nil
}
