package mediator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitSingleHandler(t *testing.T) {
	// arrange
	rec := &recorder{}
	source := sourceOf(newAccountCommands(t, "a", rec))
	dispatcher := NewCommandDispatcher(source)

	// act
	err := dispatcher.Commit(context.Background(), CreateAccount{ID: 1})

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"a.create"}, rec.Calls())
}

func TestCommitRunsEveryMatchInSourceOrder(t *testing.T) {
	rec := &recorder{}
	source := sourceOf(
		newAccountCommands(t, "a", rec),
		newAccountEvents(t, rec),
		newAccountCommands(t, "b", rec),
	)
	dispatcher := NewCommandDispatcher(source)

	err := dispatcher.Commit(context.Background(), CreateAccount{ID: 1})

	require.NoError(t, err)
	assert.Equal(t, []string{"a.create", "events.create", "b.create"}, rec.Calls())
}

func TestCommitOrphaned(t *testing.T) {
	rec := &recorder{}
	source := sourceOf(newAccountEvents(t, rec))
	dispatcher := NewCommandDispatcher(source)

	err := dispatcher.Commit(context.Background(), DeleteAccount{ID: 7})

	require.ErrorIs(t, err, ErrOrphanedHandler)
	var orphaned *OrphanedHandlerError
	require.ErrorAs(t, err, &orphaned)
	assert.Equal(t, CommandHandlerMarker, orphaned.Marker)
	assert.Equal(t, "unable to retrieve a CommandHandler for the specified Command: github.com/TheAlpha16/mediator-go.DeleteAccount", err.Error())
	assert.Empty(t, rec.Calls())
}

func TestCommitWithNoHandlersAtAll(t *testing.T) {
	dispatcher := NewCommandDispatcher(sourceOf())

	err := dispatcher.Commit(context.Background(), CreateAccount{})

	assert.ErrorIs(t, err, ErrOrphanedHandler)
}

func TestCommitNilRequest(t *testing.T) {
	source := sourceOf(newAccountCommands(t, "a", &recorder{}))
	dispatcher := NewCommandDispatcher(source)
	var typedNil *CreateAccount

	errUntyped := dispatcher.Commit(context.Background(), nil)
	errTyped := dispatcher.Commit(context.Background(), typedNil)

	assert.ErrorIs(t, errUntyped, ErrInvalidRequest)
	assert.ErrorIs(t, errTyped, ErrInvalidRequest)
	assert.Equal(t, int32(0), source.resolves.Load(), "source must not be consulted")
}

func TestCommitStopsAtFirstError(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	first := newAccountCommands(t, "a", rec)
	second := newAccountCommands(t, "b", rec)
	second.fail = boom
	third := newAccountCommands(t, "c", rec)
	dispatcher := NewCommandDispatcher(sourceOf(first, second, third))

	err := dispatcher.Commit(context.Background(), CreateAccount{ID: 1})

	assert.Same(t, boom, err)
	assert.Equal(t, []string{"a.create", "b.create"}, rec.Calls())
}

func TestCommitPropagatesSourceErrorUnchanged(t *testing.T) {
	failure := errors.New("container disposed")
	source := &countingSource{err: failure}
	dispatcher := NewCommandDispatcher(source)

	err := dispatcher.Commit(context.Background(), CreateAccount{})

	assert.Same(t, failure, err)
	assert.NotErrorIs(t, err, ErrOrphanedHandler)
}

func TestCommitRejectsObjectWithoutCapability(t *testing.T) {
	source := HandlerSourceFunc(func(ctx context.Context, marker Marker) ([]any, error) {
		return []any{struct{}{}}, nil
	})
	dispatcher := NewCommandDispatcher(source)

	err := dispatcher.Commit(context.Background(), CreateAccount{})

	assert.ErrorIs(t, err, ErrInvalidHandler)
}

func TestCommitResolvesOnEveryDispatch(t *testing.T) {
	rec := &recorder{}
	var calls atomic.Int32
	source := HandlerSourceFunc(func(ctx context.Context, marker Marker) ([]any, error) {
		n := calls.Add(1)
		return []any{newAccountCommands(t, string(rune('a'+n-1)), rec)}, nil
	})
	dispatcher := NewCommandDispatcher(source)

	require.NoError(t, dispatcher.Commit(context.Background(), CreateAccount{}))
	require.NoError(t, dispatcher.Commit(context.Background(), CreateAccount{}))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"a.create", "b.create"}, rec.Calls())
}

func TestCommitAsync(t *testing.T) {
	rec := &recorder{}
	dispatcher := NewCommandDispatcher(sourceOf(newAccountCommands(t, "a", rec)))

	_, err := dispatcher.CommitAsync(context.Background(), DeleteAccount{ID: 1}).Await(context.Background())
	_, invalid := dispatcher.CommitAsync(context.Background(), nil).Result()

	require.NoError(t, err)
	assert.Equal(t, []string{"a.delete"}, rec.Calls())
	assert.ErrorIs(t, invalid, ErrInvalidRequest)
}

func TestCommitAsyncOutcomesMatchSync(t *testing.T) {
	dispatcher := NewCommandDispatcher(sourceOf(newAccountEvents(t, &recorder{})))

	syncErr := dispatcher.Commit(context.Background(), DeleteAccount{})
	_, asyncErr := dispatcher.CommitAsync(context.Background(), DeleteAccount{}).Result()

	assert.ErrorIs(t, syncErr, ErrOrphanedHandler)
	assert.ErrorIs(t, asyncErr, ErrOrphanedHandler)
	assert.Equal(t, syncErr.Error(), asyncErr.Error())
}

func TestCommitPassesCancellationToThunks(t *testing.T) {
	rec := &recorder{}
	dispatcher := NewCommandDispatcher(sourceOf(newAccountCommands(t, "a", rec)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := dispatcher.Commit(ctx, DeleteAccount{ID: 1})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a.delete"}, rec.Calls())
}

func TestCommitConcurrentFanOut(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	handlers := make([]any, 3)
	for i := range handlers {
		registry := MustRegistry(NewCommandRegistry(func(b *Builder) {
			RegisterContext(b, func(ctx context.Context, cmd CreateAccount) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return nil
			})
		}))
		handlers[i] = &staticCommandHandler{registry: registry}
	}
	dispatcher := NewCommandDispatcher(sourceOf(handlers...), WithConcurrentFanOut(3))

	done := dispatcher.CommitAsync(context.Background(), CreateAccount{})
	require.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, 5*time.Millisecond)
	close(release)
	_, err := done.Result()

	require.NoError(t, err)
	assert.Equal(t, int32(3), peak.Load())
}

type staticCommandHandler struct {
	registry *Registry
}

func (h *staticCommandHandler) Commands() *Registry { return h.registry }

func TestCommitAsyncPanicReachesCaller(t *testing.T) {
	h := &staticCommandHandler{registry: MustRegistry(NewCommandRegistry(func(b *Builder) {
		Register(b, func(CreateAccount) error { panic("handler blew up") })
	}))}
	dispatcher := NewCommandDispatcher(sourceOf(h))

	assert.PanicsWithValue(t, "handler blew up", func() {
		_ = dispatcher.Commit(context.Background(), CreateAccount{})
	})
	future := dispatcher.CommitAsync(context.Background(), CreateAccount{})
	<-future.Done()

	recovered := func() (r any) {
		defer func() { r = recover() }()
		_, _ = future.Result()
		return nil
	}()
	rec, ok := recovered.(*panics.Recovered)
	require.True(t, ok, "got %v", recovered)
	assert.Equal(t, "handler blew up", rec.Value)
}
