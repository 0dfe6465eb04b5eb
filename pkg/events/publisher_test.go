package events

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/wallet-bridge/pkg/view"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	if err := pub.Publish(context.Background(), &BridgeEvent{Kind: KindPageLoaded}); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestNotifier_StampsEvents(t *testing.T) {
	var captured []*BridgeEvent
	pub := NewCallbackPublisher(func(_ context.Context, event *BridgeEvent) error {
		captured = append(captured, event)
		return nil
	})
	n := NewNotifier(pub, "go_wallet-bridge")

	n.DidAuthenticate(context.Background(), true)
	n.VisibilityChanged(false, view.SourceGate)

	if len(captured) != 2 {
		t.Fatalf("events:publisher_test - %d events, want 2", len(captured))
	}
	auth := captured[0]
	if auth.Kind != KindAuthenticated || auth.Authenticated == nil || !*auth.Authenticated {
		t.Errorf("events:publisher_test - authenticated event = %+v", auth)
	}
	if auth.Originator != "go_wallet-bridge" || auth.Timestamp == "" {
		t.Errorf("events:publisher_test - event not stamped: %+v", auth)
	}
	vis := captured[1]
	if vis.Kind != KindVisibilityChanged || vis.Visible == nil || *vis.Visible || vis.Source != "gate" {
		t.Errorf("events:publisher_test - visibility event = %+v", vis)
	}
}

func TestNotifier_PublishErrorIsAbsorbed(t *testing.T) {
	pub := NewCallbackPublisher(func(context.Context, *BridgeEvent) error {
		return errors.New("bus down")
	})
	NewNotifier(pub, "go_test").PageLoaded(context.Background())
}
