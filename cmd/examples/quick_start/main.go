package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/internal/config"
	"github.com/TheAlpha16/mediator-go/internal/logging"
)

type CreateAccount struct {
	mediator.CommandBase
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type AccountCreated struct {
	mediator.DomainEventBase
	ID int
}

type AccountWelcomed struct {
	mediator.IntegrationEventBase
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type GetAccount struct {
	mediator.QueryBase
	ID int
}

type AccountView struct {
	ID       int
	FullName string
	Email    string
}

// AccountHandler keeps accounts in memory. It handles commands, queries and
// the domain events it raises itself.
type AccountHandler struct {
	raise    func(context.Context, mediator.DomainEvent) error
	mu       sync.RWMutex
	accounts map[int]AccountView

	commands *mediator.Registry
	queries  *mediator.Registry
	events   *mediator.Registry
}

func NewAccountHandler(raise func(context.Context, mediator.DomainEvent) error) (*AccountHandler, error) {
	h := &AccountHandler{raise: raise, accounts: make(map[int]AccountView)}

	var err error
	if h.commands, err = mediator.NewCommandRegistry(func(b *mediator.Builder) {
		mediator.RegisterContext(b, h.createAccount)
	}); err != nil {
		return nil, err
	}
	if h.queries, err = mediator.NewQueryRegistry(func(b *mediator.Builder) {
		mediator.RegisterReply(b, h.getAccount)
	}); err != nil {
		return nil, err
	}
	if h.events, err = mediator.NewDomainEventRegistry(func(b *mediator.Builder) {
		mediator.Register(b, h.accountCreated)
	}); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *AccountHandler) Commands() *mediator.Registry     { return h.commands }
func (h *AccountHandler) Queries() *mediator.Registry      { return h.queries }
func (h *AccountHandler) DomainEvents() *mediator.Registry { return h.events }

func (h *AccountHandler) createAccount(ctx context.Context, cmd CreateAccount) error {
	h.mu.Lock()
	h.accounts[cmd.ID] = AccountView{ID: cmd.ID, FullName: cmd.FullName, Email: cmd.Email}
	h.mu.Unlock()
	return h.raise(ctx, AccountCreated{ID: cmd.ID})
}

func (h *AccountHandler) getAccount(q GetAccount) (AccountView, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	view, ok := h.accounts[q.ID]
	if !ok {
		return AccountView{}, fmt.Errorf("account %d not found", q.ID)
	}
	return view, nil
}

func (h *AccountHandler) accountCreated(e AccountCreated) error {
	fmt.Printf("account %d created\n", e.ID)
	return nil
}

// Welcomer greets new accounts.
type Welcomer struct {
	events *mediator.Registry
}

func NewWelcomer() (*Welcomer, error) {
	w := &Welcomer{}
	var err error
	w.events, err = mediator.NewIntegrationEventRegistry(func(b *mediator.Builder) {
		mediator.Register(b, w.welcome)
	})
	return w, err
}

func (w *Welcomer) IntegrationEvents() *mediator.Registry { return w.events }

func (w *Welcomer) welcome(e AccountWelcomed) error {
	fmt.Printf("Welcome aboard, %s!\n", e.Email)
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "quick_start: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log)
	defer logger.Close()
	if configPath != "" {
		loader.Watch(func(next *config.Config, err error) {
			if err != nil {
				logger.Error("config reload rejected", "error", err)
				return
			}
			logger.SetLevel(next.Log.Level)
			logger.Info("log level reloaded", "level", next.Log.Level)
		})
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	reg := prometheus.NewRegistry()
	metrics, err := mediator.NewMetrics(reg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	opts := append(cfg.MediatorOptions(logger.Logger, metrics), mediator.WithTracerProvider(tp))

	catalog := mediator.NewCatalog()
	var m *mediator.Mediator
	if err := mediator.AddHandler(catalog, func() (*AccountHandler, error) {
		return NewAccountHandler(func(ctx context.Context, e mediator.DomainEvent) error {
			return m.Raise(ctx, e)
		})
	}, mediator.Singleton); err != nil {
		return err
	}
	if err := mediator.AddHandler(catalog, NewWelcomer, mediator.Transient); err != nil {
		return err
	}
	m = mediator.NewMediator(catalog, opts...)

	if cfg.Mediator.Describe {
		descriptor, err := m.Describe(ctx)
		if err != nil {
			return err
		}
		fmt.Print(descriptor)
	}

	codec := mediator.NewCodec()
	if err := errors.Join(
		mediator.RegisterMessageType[CreateAccount](codec),
		mediator.RegisterMessageType[AccountWelcomed](codec),
	); err != nil {
		return err
	}

	bus, err := newBus(cfg, m, codec, opts)
	if err != nil {
		return err
	}
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer bus.Shutdown()

	if err := bus.Send(ctx, CreateAccount{ID: 1, FullName: "Jane Doe", Email: "jane@example.com"}); err != nil {
		return err
	}
	if err := bus.Emit(ctx, AccountWelcomed{ID: 1, Email: "jane@example.com"}); err != nil {
		return err
	}

	// Give the bus a moment to consume what was sent.
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return nil
	}

	view, err := mediator.Ask[AccountView](ctx, m, GetAccount{ID: 1})
	if err != nil {
		return err
	}
	fmt.Printf("account %d: %s <%s>\n", view.ID, view.FullName, view.Email)
	return nil
}

func newBus(cfg *config.Config, m *mediator.Mediator, codec *mediator.Codec, opts []mediator.Option) (mediator.Bus, error) {
	switch cfg.Transport.Kind {
	case "valkey":
		return mediator.NewValkeyBusWithAddress(m, codec, cfg.Transport.Valkey.Address, cfg.Transport.Valkey.Channel, opts...)
	case "kafka":
		transport := mediator.NewKafkaTransport(mediator.KafkaConfig{
			Brokers: cfg.Transport.Kafka.Brokers,
			Topic:   cfg.Transport.Kafka.Topic,
			GroupID: cfg.Transport.Kafka.GroupID,
		}, opts...)
		return mediator.NewBus(m, transport, codec, opts...), nil
	default:
		return mediator.NewBus(m, mediator.NewMemoryTransport(opts...), codec, opts...), nil
	}
}
