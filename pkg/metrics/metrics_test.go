package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/morezero/wallet-bridge/pkg/channel"
	"github.com/morezero/wallet-bridge/pkg/dispatcher"
)

func TestCollector_RecordCall(t *testing.T) {
	c := NewCollector(nil)
	c.RecordCall(dispatcher.CallRecord{Operation: "encrypt", Outcome: dispatcher.OutcomeOK, Duration: 20 * time.Millisecond})
	c.RecordCall(dispatcher.CallRecord{Operation: "encrypt", Outcome: dispatcher.OutcomeOK, Duration: 30 * time.Millisecond})
	c.RecordCall(dispatcher.CallRecord{Operation: "encrypt", Outcome: dispatcher.OutcomeTimedOut, Duration: time.Minute})

	if got := testutil.ToFloat64(c.calls.WithLabelValues("encrypt", dispatcher.OutcomeOK)); got != 2 {
		t.Errorf("metrics:metrics_test - ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.calls.WithLabelValues("encrypt", dispatcher.OutcomeTimedOut)); got != 1 {
		t.Errorf("metrics:metrics_test - timed out calls = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.callDuration); got != 1 {
		t.Errorf("metrics:metrics_test - duration series = %d, want 1", got)
	}
}

func TestCollector_PendingAndDrops(t *testing.T) {
	pending := 3
	c := NewCollector(func() int { return pending })
	c.DroppedEvent(channel.DropUnknownCallID)
	c.DroppedEvent(channel.DropUnknownCallID)

	if got := testutil.ToFloat64(c.pendingCalls); got != 3 {
		t.Errorf("metrics:metrics_test - pending = %v, want 3", got)
	}
	pending = 0
	if got := testutil.ToFloat64(c.pendingCalls); got != 0 {
		t.Errorf("metrics:metrics_test - pending = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.droppedEvents.WithLabelValues(channel.DropUnknownCallID)); got != 2 {
		t.Errorf("metrics:metrics_test - dropped = %v, want 2", got)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	c := NewCollector(func() int { return 1 })
	c.RecordCall(dispatcher.CallRecord{Operation: "getVersion", Outcome: dispatcher.OutcomeOK, Duration: time.Millisecond})
	reg, err := NewRegistry(c)
	if err != nil {
		t.Fatalf("metrics:metrics_test - NewRegistry: %v", err)
	}

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics:metrics_test - GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`bridge_calls_total{operation="getVersion",outcome="ok"} 1`,
		"bridge_pending_calls 1",
		"bridge_call_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics:metrics_test - /metrics missing %q", want)
		}
	}
}
