package core

import (
	"context"
	"strings"
)

type ActorKind string

const (
	ActorKindHuman     ActorKind = "human"
	ActorKindAutomated ActorKind = "automated"
)

// Actor identifies who performed an action: a contact or agent (human), or
// an assistant, automation rule or the system itself (automated).
type Actor struct {
	Kind ActorKind
	ID   string
	Name string
}

func (a Actor) IsZero() bool {
	return a.Kind == "" && strings.TrimSpace(a.ID) == "" && strings.TrimSpace(a.Name) == ""
}

// SystemActor is used when a status change carries no explicit actor.
func SystemActor() Actor {
	return Actor{Kind: ActorKindAutomated, ID: "system", Name: "System"}
}

// Execution is the event-scoped state shared by the components handling
// one event or one command. It lives in the context and never outlives it.
type Execution struct {
	EventID string
	InboxID string
	Actor   Actor
	Reason  string
}

type executionContextKey struct{}

func WithExecution(ctx context.Context, exec Execution) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, executionContextKey{}, exec)
}

func ExecutionFrom(ctx context.Context) (Execution, bool) {
	if ctx == nil {
		return Execution{}, false
	}
	exec, ok := ctx.Value(executionContextKey{}).(Execution)
	return exec, ok
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	exec, _ := ExecutionFrom(ctx)
	exec.Actor = actor
	return WithExecution(ctx, exec)
}

// WithReason attaches a transient reason consumed by the next status change
// performed with the returned context.
func WithReason(ctx context.Context, reason string) context.Context {
	exec, _ := ExecutionFrom(ctx)
	exec.Reason = strings.TrimSpace(reason)
	return WithExecution(ctx, exec)
}

// BeginEventScope installs exec on a cancellable child context. The returned
// end func must be deferred; it cancels the scope on every exit path so no
// state leaks into the next event.
func BeginEventScope(ctx context.Context, exec Execution) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped, cancel := context.WithCancel(ctx)
	return WithExecution(scoped, exec), cancel
}
