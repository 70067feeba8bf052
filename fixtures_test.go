package mediator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type CreateAccount struct {
	CommandBase
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
}

type DeleteAccount struct {
	CommandBase
	ID int `json:"id"`
}

type GetAccount struct {
	QueryBase
	ID int `json:"id"`
}

type GetOrder struct {
	QueryBase
	ID int `json:"id"`
}

type AccountView struct {
	ID       int
	FullName string
}

type AccountCreated struct {
	DomainEventBase
	ID int `json:"id"`
}

type AccountWelcomed struct {
	IntegrationEventBase
	ID int `json:"id"`
}

// recorder collects the names of invoked thunks in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// accountCommands handles CreateAccount synchronously and DeleteAccount with
// a context. fail, when set, is returned by both.
type accountCommands struct {
	name     string
	rec      *recorder
	fail     error
	registry *Registry
}

func newAccountCommands(t *testing.T, name string, rec *recorder) *accountCommands {
	t.Helper()
	h := &accountCommands{name: name, rec: rec}
	var err error
	h.registry, err = NewCommandRegistry(func(b *Builder) {
		Register(b, h.createAccount)
		RegisterContext(b, h.deleteAccount)
	})
	require.NoError(t, err)
	return h
}

func (h *accountCommands) Commands() *Registry { return h.registry }

func (h *accountCommands) createAccount(cmd CreateAccount) error {
	h.rec.record(h.name + ".create")
	return h.fail
}

func (h *accountCommands) deleteAccount(ctx context.Context, cmd DeleteAccount) error {
	h.rec.record(h.name + ".delete")
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.fail
}

// accountQueries answers GetAccount with an AccountView.
type accountQueries struct {
	rec      *recorder
	fail     error
	registry *Registry
}

func newAccountQueries(t *testing.T, rec *recorder) *accountQueries {
	t.Helper()
	h := &accountQueries{rec: rec}
	var err error
	h.registry, err = NewQueryRegistry(func(b *Builder) {
		RegisterReply(b, h.getAccount)
		RegisterReplyContext(b, h.getOrder)
	})
	require.NoError(t, err)
	return h
}

func (h *accountQueries) Queries() *Registry { return h.registry }

func (h *accountQueries) getAccount(q GetAccount) (AccountView, error) {
	h.rec.record("queries.getAccount")
	if h.fail != nil {
		return AccountView{}, h.fail
	}
	return AccountView{ID: q.ID, FullName: "Jane Doe"}, nil
}

func (h *accountQueries) getOrder(ctx context.Context, q GetOrder) (string, error) {
	h.rec.record("queries.getOrder")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "order", nil
}

// accountEvents handles both event families and commands, so it is resolved
// once per marker.
type accountEvents struct {
	rec               *recorder
	commands          *Registry
	domainEvents      *Registry
	integrationEvents *Registry
}

func newAccountEvents(t *testing.T, rec *recorder) *accountEvents {
	t.Helper()
	h := &accountEvents{rec: rec}
	h.commands = MustRegistry(NewCommandRegistry(func(b *Builder) {
		Register(b, func(CreateAccount) error {
			rec.record("events.create")
			return nil
		})
	}))
	h.domainEvents = MustRegistry(NewDomainEventRegistry(func(b *Builder) {
		Register(b, h.accountCreated)
	}))
	h.integrationEvents = MustRegistry(NewIntegrationEventRegistry(func(b *Builder) {
		RegisterContext(b, h.accountWelcomed)
	}))
	return h
}

func (h *accountEvents) Commands() *Registry          { return h.commands }
func (h *accountEvents) DomainEvents() *Registry      { return h.domainEvents }
func (h *accountEvents) IntegrationEvents() *Registry { return h.integrationEvents }

func (h *accountEvents) accountCreated(e AccountCreated) error {
	h.rec.record("events.created")
	return nil
}

func (h *accountEvents) accountWelcomed(ctx context.Context, e AccountWelcomed) error {
	h.rec.record("events.welcomed")
	return nil
}

// countingSource yields handlers per marker in the given order and counts
// how often it was asked.
type countingSource struct {
	handlers []any
	err      error
	resolves atomic.Int32
}

func sourceOf(handlers ...any) *countingSource {
	return &countingSource{handlers: handlers}
}

func (s *countingSource) Resolve(ctx context.Context, marker Marker) ([]any, error) {
	s.resolves.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	var out []any
	for _, h := range s.handlers {
		for _, m := range MarkersOf(h) {
			if m == marker {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

// namedEvents handles both event families and records its name on every call.
type namedEvents struct {
	domainEvents      *Registry
	integrationEvents *Registry
}

func newNamedEvents(name string, rec *recorder) *namedEvents {
	return &namedEvents{
		domainEvents: MustRegistry(NewDomainEventRegistry(func(b *Builder) {
			Register(b, func(AccountCreated) error {
				rec.record(name + ".created")
				return nil
			})
		})),
		integrationEvents: MustRegistry(NewIntegrationEventRegistry(func(b *Builder) {
			RegisterContext(b, func(context.Context, AccountWelcomed) error {
				rec.record(name + ".welcomed")
				return nil
			})
		})),
	}
}

func (h *namedEvents) DomainEvents() *Registry      { return h.domainEvents }
func (h *namedEvents) IntegrationEvents() *Registry { return h.integrationEvents }
