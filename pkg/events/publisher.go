package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/wallet-bridge/pkg/view"
)

const logPrefix = "events:publisher"

// EventPublisher is the interface for publishing bridge events.
type EventPublisher interface {
	Publish(ctx context.Context, event *BridgeEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// Publish is a no-op.
func (p *NoOpPublisher) Publish(_ context.Context, _ *BridgeEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *BridgeEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *BridgeEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// Publish calls the callback.
func (p *CallbackPublisher) Publish(ctx context.Context, event *BridgeEvent) error {
	return p.callback(ctx, event)
}

// Notifier turns bridge state changes into published events.
type Notifier struct {
	publisher  EventPublisher
	originator string
}

// NewNotifier creates a Notifier stamping events with originator.
func NewNotifier(publisher EventPublisher, originator string) *Notifier {
	if publisher == nil {
		publisher = &NoOpPublisher{}
	}
	return &Notifier{publisher: publisher, originator: originator}
}

// DidAuthenticate publishes an authenticated event. It satisfies the gate's observer.
func (n *Notifier) DidAuthenticate(ctx context.Context, status bool) {
	n.publish(ctx, &BridgeEvent{Kind: KindAuthenticated, Authenticated: boolPtr(status)})
}

// VisibilityChanged publishes a visibility event. It satisfies view.Listener.
func (n *Notifier) VisibilityChanged(visible bool, source view.Source) {
	n.publish(context.Background(), &BridgeEvent{Kind: KindVisibilityChanged, Visible: boolPtr(visible), Source: string(source)})
}

// PageLoaded publishes a page load event.
func (n *Notifier) PageLoaded(ctx context.Context) {
	n.publish(ctx, &BridgeEvent{Kind: KindPageLoaded})
}

func (n *Notifier) publish(ctx context.Context, event *BridgeEvent) {
	event.Originator = n.originator
	event.Timestamp = now()
	if err := n.publisher.Publish(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", logPrefix, event.Kind, err))
	}
}
