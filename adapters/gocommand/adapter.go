package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	"github.com/goliatone/go-crmbridge/core"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// Register adds handlers, commands and queries alike, to the registry.
func (a *RegistryAdapter) Register(handlers ...any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := a.registry.RegisterCommand(handler); err != nil {
			return err
		}
	}
	return nil
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// ExecuteEnvelope validates msg, runs cmd and returns the envelope it
// stored as its result.
func ExecuteEnvelope[T any](ctx context.Context, cmd command.Commander[T], msg T) (core.Envelope, error) {
	if cmd == nil {
		return core.Envelope{}, fmt.Errorf("gocommand: command is required")
	}
	if err := ValidateMessageContract(msg); err != nil {
		return core.Envelope{}, err
	}
	collector := command.NewResult[core.Envelope]()
	if err := cmd.Execute(command.ContextWithResult(ctx, collector), msg); err != nil {
		return core.Envelope{}, err
	}
	env, ok := collector.Load()
	if !ok {
		return core.Envelope{}, fmt.Errorf("gocommand: %T stored no result", cmd)
	}
	return env, nil
}

// QueryEnvelope validates msg and runs qry.
func QueryEnvelope[T any](ctx context.Context, qry command.Querier[T, core.Envelope], msg T) (core.Envelope, error) {
	if qry == nil {
		return core.Envelope{}, fmt.Errorf("gocommand: query is required")
	}
	if err := ValidateMessageContract(msg); err != nil {
		return core.Envelope{}, err
	}
	return qry.Query(ctx, msg)
}

// DispatchEnvelope sends msg through the process dispatcher and collects the
// envelope stored by the subscribed command.
func DispatchEnvelope[T any](ctx context.Context, msg T) (core.Envelope, error) {
	collector := command.NewResult[core.Envelope]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return core.Envelope{}, err
	}
	env, ok := collector.Load()
	if !ok {
		return core.Envelope{}, fmt.Errorf("gocommand: no result stored for %T", msg)
	}
	return env, nil
}
