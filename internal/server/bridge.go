package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/wallet-bridge/pkg/authgate"
	"github.com/morezero/wallet-bridge/pkg/catalog"
	"github.com/morezero/wallet-bridge/pkg/channel"
	"github.com/morezero/wallet-bridge/pkg/dispatcher"
	"github.com/morezero/wallet-bridge/pkg/events"
	"github.com/morezero/wallet-bridge/pkg/metrics"
	"github.com/morezero/wallet-bridge/pkg/pending"
	"github.com/morezero/wallet-bridge/pkg/relay"
	"github.com/morezero/wallet-bridge/pkg/semver"
	"github.com/morezero/wallet-bridge/pkg/view"
	"github.com/morezero/wallet-bridge/pkg/wallet"
)

const bridgeLogPrefix = "server:bridge"

var errNoSurface = errors.New("no surface attached")

// NewBridgeParams holds parameters for NewBridge.
type NewBridgeParams struct {
	Originator     string
	CallTimeout    time.Duration
	DeliverTimeout time.Duration
	Legacy         bool
	// Catalog adds to or overrides the built-in operations.
	Catalog          *catalog.Catalog
	MinWalletVersion string
	Publisher        events.EventPublisher
	// Recorders observe finished calls in addition to the bridge's metrics.
	Recorders []dispatcher.Recorder
}

// Bridge wires the page channel, the dispatcher and the authentication gate together.
// It is the channel's Surface and forwards deliveries to whichever surface is attached.
type Bridge struct {
	originator       string
	minWalletVersion string

	view       *view.State
	registry   *pending.Registry
	adapter    *channel.Adapter
	dispatcher *dispatcher.Dispatcher
	wallet     *wallet.Client
	gate       *authgate.Gate
	notifier   *events.Notifier
	metrics    *metrics.Collector

	mu      sync.Mutex
	surface channel.Surface
	ctx     context.Context
	version string
}

// NewBridge assembles a Bridge. Call Start, then AttachSurface.
func NewBridge(params NewBridgeParams) (*Bridge, error) {
	b := &Bridge{
		originator:       params.Originator,
		minWalletVersion: params.MinWalletVersion,
		view:             view.NewState(),
		registry:         pending.New(),
		notifier:         events.NewNotifier(params.Publisher, params.Originator),
		ctx:              context.Background(),
	}
	b.metrics = metrics.NewCollector(b.registry.Count)
	b.view.OnChange(b.notifier.VisibilityChanged)

	b.adapter = channel.NewAdapter(channel.NewAdapterParams{
		Surface:        b,
		Registry:       b.registry,
		View:           b.view,
		DeliverTimeout: params.DeliverTimeout,
		OnDrop:         b.metrics.DroppedEvent,
	})

	disp, err := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry: b.registry,
		Sender:   b.adapter,
		Config: dispatcher.Config{
			Originator: params.Originator,
			Timeout:    params.CallTimeout,
			Legacy:     params.Legacy,
		},
		Recorders: append([]dispatcher.Recorder{b.metrics}, params.Recorders...),
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create dispatcher: %w", bridgeLogPrefix, err)
	}
	if _, err := catalog.Apply(params.Catalog, disp); err != nil {
		return nil, err
	}
	b.dispatcher = disp
	b.wallet = wallet.NewClient(disp)

	b.gate = authgate.NewGate(authgate.NewGateParams{
		Authenticator: b.wallet,
		Presenter:     b.view.As(view.SourceGate),
		Observers: []authgate.Observer{
			b.notifier,
			authgate.ObserverFunc(b.checkWalletVersion),
		},
	})
	return b, nil
}

// Start launches the channel writer. Page loads after Start run under ctx.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
	b.adapter.Start(ctx)
}

// Close stops the channel and fails every call still waiting for the page.
func (b *Bridge) Close() {
	b.adapter.Close()
	if n := b.registry.FailAll(channel.ErrClosed); n > 0 {
		slog.Warn(fmt.Sprintf("%s - failed %d pending calls on shutdown", bridgeLogPrefix, n))
	}
}

// AttachSurface sets the surface outbound messages are delivered to.
func (b *Bridge) AttachSurface(s channel.Surface) {
	b.mu.Lock()
	b.surface = s
	b.mu.Unlock()
}

// Deliver implements channel.Surface.
func (b *Bridge) Deliver(ctx context.Context, wireText string) error {
	b.mu.Lock()
	s := b.surface
	b.mu.Unlock()
	if s == nil {
		return errNoSurface
	}
	return s.Deliver(ctx, wireText)
}

// HandleMessage routes a page message into the channel.
func (b *Bridge) HandleMessage(name, body string) {
	b.adapter.HandleEvent(name, body)
}

// PageLoaded starts the authentication sequence for a new page on its own goroutine.
func (b *Bridge) PageLoaded() {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	b.notifier.PageLoaded(ctx)
	go func() {
		err := b.gate.ContentLoaded(ctx)
		switch {
		case err == nil, errors.Is(err, authgate.ErrSuperseded), errors.Is(err, context.Canceled):
		default:
			slog.Error(fmt.Sprintf("%s - authentication sequence failed: %v", bridgeLogPrefix, err))
		}
	}()
}

func (b *Bridge) checkWalletVersion(ctx context.Context, _ bool) {
	version, err := b.wallet.GetVersion(ctx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - could not read wallet version: %v", bridgeLogPrefix, err))
		return
	}
	b.mu.Lock()
	b.version = version
	b.mu.Unlock()

	ok, err := semver.CheckCompatible(version, b.minWalletVersion)
	switch {
	case err != nil:
		slog.Warn(fmt.Sprintf("%s - wallet version check: %v", bridgeLogPrefix, err))
	case !ok:
		slog.Warn(fmt.Sprintf("%s - wallet version %s does not satisfy %s", bridgeLogPrefix, version, b.minWalletVersion))
	default:
		slog.Info(fmt.Sprintf("%s - wallet version %s", bridgeLogPrefix, version))
	}
}

// Status implements relay.Bridge.
func (b *Bridge) Status() relay.Status {
	return relay.Status{
		Originator: b.originator,
		Gate:       b.gate.State().String(),
		Visible:    b.view.Visible(),
		Pending:    b.registry.Count(),
		Operations: len(b.dispatcher.Operations()),
	}
}

// Show reveals host content on behalf of the host application.
func (b *Bridge) Show() { b.view.As(view.SourceHost).Show() }

// Hide conceals host content on behalf of the host application.
func (b *Bridge) Hide() { b.view.As(view.SourceHost).Hide() }

// WalletVersion returns the version the wallet reported after the last authentication.
func (b *Bridge) WalletVersion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Dispatcher returns the call dispatcher.
func (b *Bridge) Dispatcher() *dispatcher.Dispatcher { return b.dispatcher }

// Wallet returns the typed wallet client.
func (b *Bridge) Wallet() *wallet.Client { return b.wallet }

// Gate returns the authentication gate.
func (b *Bridge) Gate() *authgate.Gate { return b.gate }

// Metrics returns the bridge's metrics collector.
func (b *Bridge) Metrics() *metrics.Collector { return b.metrics }
