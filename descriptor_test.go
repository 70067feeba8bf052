package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	rec := &recorder{}
	source := sourceOf(
		newAccountCommands(t, "a", rec),
		newAccountCommands(t, "b", rec),
		newAccountEvents(t, rec),
		newAccountQueries(t, rec),
	)

	d, err := Discover(context.Background(), source)
	require.NoError(t, err)

	handlers, requests := d.Counts(CommandHandlerMarker)
	assert.Equal(t, 2, handlers, "same type is listed once")
	assert.Equal(t, 3, requests)

	handlers, requests = d.Counts(QueryHandlerMarker)
	assert.Equal(t, 1, handlers)
	assert.Equal(t, 2, requests)

	section, ok := d.Section(QueryHandlerMarker)
	require.True(t, ok)
	assert.Equal(t, "github.com/TheAlpha16/mediator-go", section.Handlers[0].Package)
	assert.Equal(t, "*accountQueries", section.Handlers[0].Name)
	assert.Equal(t, "github.com/TheAlpha16/mediator-go.AccountView", section.Handlers[0].Requests[0].ResultType)
	assert.True(t, section.Handlers[0].Requests[1].Async)

	assert.Len(t, d.Sections(), 4)
	assert.Empty(t, rec.Calls(), "discovery never invokes thunks")
}

func TestDiscoverSelectedMarkers(t *testing.T) {
	d, err := Discover(context.Background(), sourceOf(newAccountEvents(t, &recorder{})), DomainEventHandlerMarker)
	require.NoError(t, err)

	_, hasCommands := d.Section(CommandHandlerMarker)
	_, requests := d.Counts(DomainEventHandlerMarker)

	assert.False(t, hasCommands)
	assert.Equal(t, 1, requests)

	_, err = Discover(context.Background(), sourceOf(), Marker("Bogus"))
	assert.ErrorIs(t, err, ErrInvalidHandler)
}

func TestDescriptorString(t *testing.T) {
	d, err := Discover(context.Background(), sourceOf(newAccountCommands(t, "a", &recorder{})))
	require.NoError(t, err)

	text := d.String()

	header := "Discovered 1 CommandHandler implementations covering a total of 2 Command methods"
	assert.True(t, strings.HasPrefix(text, header+"\n"))
	assert.Contains(t, text, "Package: github.com/TheAlpha16/mediator-go\n")
	assert.Contains(t, text, "<*accountCommands>\n")
	assert.Contains(t, text, "\t*CreateAccount --> &mediator-go.(*accountCommands).createAccount\n")
	assert.Contains(t, text, "\t*DeleteAccount --> &mediator-go.(*accountCommands).deleteAccount\n")
	assert.Contains(t, text, strings.Repeat("-", len(header))+"\n")
	assert.NotContains(t, text, "QueryHandler", "empty sections are not rendered")
}

func TestDescriptorJSONAndLogValue(t *testing.T) {
	d, err := Discover(context.Background(), sourceOf(newAccountQueries(t, &recorder{})), QueryHandlerMarker)
	require.NoError(t, err)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var decoded []DescriptorSection
	require.NoError(t, json.Unmarshal(raw, &decoded))

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("handlers", "descriptor", d)

	require.Len(t, decoded, 1)
	assert.Equal(t, QueryHandlerMarker, decoded[0].Marker)
	assert.Len(t, decoded[0].Handlers[0].Requests, 2)
	assert.Contains(t, buf.String(), `"descriptor":{"QueryHandler":{"handlers":1,"requests":2}}`)
}

func TestMediatorDescribeRunsOnce(t *testing.T) {
	source := sourceOf(newAccountCommands(t, "a", &recorder{}))
	m := NewMediator(source)
	assert.Nil(t, m.Descriptor(), "absent until requested")

	first, err := m.Describe(context.Background())
	require.NoError(t, err)
	resolves := source.resolves.Load()
	second, err := m.Describe(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, m.Descriptor())
	assert.Equal(t, resolves, source.resolves.Load())
	assert.Equal(t, int32(len(Markers())), resolves)
}
