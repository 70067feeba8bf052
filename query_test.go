package mediator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskReturnsResult(t *testing.T) {
	// arrange
	rec := &recorder{}
	dispatcher := NewQueryDispatcher(sourceOf(newAccountQueries(t, rec)))

	// act
	view, err := Ask[AccountView](context.Background(), dispatcher, GetAccount{ID: 42})

	// assert
	require.NoError(t, err)
	assert.Equal(t, AccountView{ID: 42, FullName: "Jane Doe"}, view)
	assert.Equal(t, []string{"queries.getAccount"}, rec.Calls())
}

func TestAskResultTypeMismatchIsOrphaned(t *testing.T) {
	rec := &recorder{}
	dispatcher := NewQueryDispatcher(sourceOf(newAccountQueries(t, rec)))

	_, err := Ask[string](context.Background(), dispatcher, GetAccount{ID: 1})

	var orphaned *OrphanedHandlerError
	require.ErrorAs(t, err, &orphaned)
	assert.Equal(t, QueryHandlerMarker, orphaned.Marker)
	assert.Equal(t, reflect.TypeFor[string](), orphaned.ResultType)
	assert.Empty(t, rec.Calls())
}

func TestAskWithoutHandler(t *testing.T) {
	dispatcher := NewQueryDispatcher(sourceOf(newAccountCommands(t, "a", &recorder{})))

	view, err := Ask[AccountView](context.Background(), dispatcher, GetAccount{ID: 1})

	assert.ErrorIs(t, err, ErrOrphanedHandler)
	assert.Zero(t, view)
}

func TestAskAmbiguousFailsBeforeInvoking(t *testing.T) {
	rec := &recorder{}
	dispatcher := NewQueryDispatcher(sourceOf(newAccountQueries(t, rec), newAccountQueries(t, rec)))

	_, err := Ask[AccountView](context.Background(), dispatcher, GetAccount{ID: 1})

	var ambiguous *AmbiguousHandlerError
	require.ErrorAs(t, err, &ambiguous)
	assert.ErrorIs(t, err, ErrAmbiguousHandler)
	assert.Len(t, ambiguous.Candidates, 2)
	assert.Empty(t, rec.Calls())
}

func TestAskAssignableResult(t *testing.T) {
	dispatcher := NewQueryDispatcher(sourceOf(newAccountQueries(t, &recorder{})))

	v, err := Ask[any](context.Background(), dispatcher, GetAccount{ID: 3})

	require.NoError(t, err)
	assert.Equal(t, AccountView{ID: 3, FullName: "Jane Doe"}, v)
}

func TestAskHandlerErrorUnchanged(t *testing.T) {
	failure := errors.New("not found")
	h := newAccountQueries(t, &recorder{})
	h.fail = failure
	dispatcher := NewQueryDispatcher(sourceOf(h))

	_, err := Ask[AccountView](context.Background(), dispatcher, GetAccount{})

	assert.Same(t, failure, err)
}

func TestAskNilQuery(t *testing.T) {
	source := sourceOf(newAccountQueries(t, &recorder{}))
	dispatcher := NewQueryDispatcher(source)

	_, err := Ask[AccountView](context.Background(), dispatcher, nil)
	_, asyncErr := AskAsync[AccountView](context.Background(), dispatcher, nil).Result()

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, asyncErr, ErrInvalidRequest)
	assert.Equal(t, int32(0), source.resolves.Load())
}

func TestAskAsyncAndCancellation(t *testing.T) {
	dispatcher := NewQueryDispatcher(sourceOf(newAccountQueries(t, &recorder{})))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	order, err := AskAsync[string](context.Background(), dispatcher, GetOrder{ID: 1}).Await(context.Background())
	_, cancelled := AskAsync[string](ctx, dispatcher, GetOrder{ID: 1}).Result()

	require.NoError(t, err)
	assert.Equal(t, "order", order)
	assert.ErrorIs(t, cancelled, context.Canceled)
}

func TestMediatorIsQuerier(t *testing.T) {
	m := NewMediator(sourceOf(newAccountQueries(t, &recorder{})))

	view, err := Ask[AccountView](context.Background(), m, GetAccount{ID: 9})
	order, orderErr := Ask[string](context.Background(), m.Queries(), GetOrder{})

	require.NoError(t, err)
	require.NoError(t, orderErr)
	assert.Equal(t, 9, view.ID)
	assert.Equal(t, "order", order)
}

type nilViewQueries struct {
	registry *Registry
}

func (h *nilViewQueries) Queries() *Registry { return h.registry }

func TestAskNilPointerResult(t *testing.T) {
	h := &nilViewQueries{registry: MustRegistry(NewQueryRegistry(func(b *Builder) {
		RegisterReply(b, func(GetAccount) (*AccountView, error) { return nil, nil })
	}))}
	dispatcher := NewQueryDispatcher(sourceOf(h))

	view, err := Ask[*AccountView](context.Background(), dispatcher, GetAccount{})

	require.NoError(t, err)
	assert.Nil(t, view)
}
