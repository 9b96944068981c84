package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const (
	// QueueResolverKey names the registry resolver that mirrors payments
	// commands into a go-job queue registry.
	QueueResolverKey = "payments.queue"

	messageTypePrefix = "payments."
)

// ValidateMessageContract checks a payments message before dispatch: it
// must carry a payments type and pass its own Validate.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	msgType := strings.TrimSpace(m.Type())
	if msgType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(msgType, messageTypePrefix) {
		return fmt.Errorf("gocommand: %q is not a payments message type", msgType)
	}
	return nil
}

// RegistryAdapter owns the go-command registry payments handlers are
// registered with and remembers which message types it serves.
type RegistryAdapter struct {
	registry *command.Registry
	handled  map[string]bool
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry, handled: map[string]bool{}}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// Handles reports whether a handler for msgType was registered through a.
func (a *RegistryAdapter) Handles(msgType string) bool {
	if a == nil {
		return false
	}
	return a.handled[strings.TrimSpace(msgType)]
}

// MirrorToQueue makes every payments command registered before Initialize
// available to go-job queue workers. Calling it twice is a no-op.
func (a *RegistryAdapter) MirrorToQueue(queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	if a.registry.HasResolver(QueueResolverKey) {
		return nil
	}
	return a.registry.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func (a *RegistryAdapter) claim(msg any) (string, error) {
	if a == nil || a.registry == nil {
		return "", fmt.Errorf("gocommand: registry is not configured")
	}
	m, ok := msg.(command.Message)
	if !ok {
		return "", fmt.Errorf("gocommand: %T must implement Type() string", msg)
	}
	msgType := strings.TrimSpace(m.Type())
	if !strings.HasPrefix(msgType, messageTypePrefix) {
		return "", fmt.Errorf("gocommand: %q is not a payments message type", msgType)
	}
	if a.handled == nil {
		a.handled = map[string]bool{}
	}
	if a.handled[msgType] {
		return "", fmt.Errorf("gocommand: handler for %s is already registered", msgType)
	}
	return msgType, nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	var msg T
	msgType, err := adapter.claim(msg)
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	adapter.handled[msgType] = true
	return subscription, nil
}

// registerQuery shares the command registry; go-command resolves queries by
// message type.
func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	var msg T
	msgType, err := adapter.claim(msg)
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.registry.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	adapter.handled[msgType] = true
	return subscription, nil
}
