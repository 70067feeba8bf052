package mediator

import "context"

// CommandDispatcher delivers commands to every matching command handler.
type CommandDispatcher struct {
	commit *dispatcher
}

func NewCommandDispatcher(source HandlerSource, opts ...Option) *CommandDispatcher {
	return &CommandDispatcher{
		commit: newDispatcher(source, CommandHandlerMarker, "Commit", newOptions(opts)),
	}
}

// Commit runs every thunk registered for the command's runtime type, in the
// order the handler source yields them, and stops at the first error.
func (d *CommandDispatcher) Commit(ctx context.Context, command Command) error {
	return d.commit.fireForget(ctx, command)
}

// CommitAsync is Commit on its own goroutine. A nil command resolves the
// returned future immediately.
func (d *CommandDispatcher) CommitAsync(ctx context.Context, command Command) *Future[struct{}] {
	return fireForgetAsync(ctx, d.commit, command)
}

func fireForgetAsync(ctx context.Context, d *dispatcher, request Request) *Future[struct{}] {
	if isNilRequest(request) {
		return resolvedFuture(struct{}{}, d.fireForget(ctx, request))
	}
	return goFuture(func() (struct{}, error) {
		return struct{}{}, d.fireForget(ctx, request)
	})
}
