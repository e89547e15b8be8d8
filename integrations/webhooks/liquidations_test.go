package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/goleak"

	"credo/core/events"
)

type received struct {
	header http.Header
	body   []byte
}

func testClient() *http.Client {
	return &http.Client{Timeout: time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
}

func liquidation() events.LendingLiquidation {
	return events.LendingLiquidation{
		LendingPosition: events.LendingPosition{
			ID:        "liq-1",
			User:      "borrower",
			Asset:     "USDC",
			Amount:    uint256.NewInt(100_000_000),
			Scaled:    uint256.NewInt(600_000_000),
			Timestamp: 1_700_000_000,
		},
		Liquidator:       "keeper",
		CollateralAsset:  "BTC",
		Seized:           uint256.NewInt(300_000),
		CollateralScaled: uint256.NewInt(1_700_000),
	}
}

func TestDispatcherSignsLiquidation(t *testing.T) {
	defer goleak.VerifyNone(t)
	deliveries := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		deliveries <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithHTTPClient(testClient()))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	dispatcher.Emit(liquidation())

	var got received
	select {
	case got = <-deliveries:
	case <-time.After(time.Second):
		t.Fatalf("expected delivery")
	}
	if got.header.Get(HeaderEvent) != events.TypeLendingLiquidation {
		t.Fatalf("unexpected event header %q", got.header.Get(HeaderEvent))
	}
	signature := got.header.Get(HeaderSignature)
	if signature[:7] != "sha256=" {
		t.Fatalf("unexpected signature prefix %s", signature)
	}
	if !Verify([]byte("secret"), got.body, signature) {
		t.Fatalf("signature does not verify")
	}
	var payload Payload
	if err := json.Unmarshal(got.body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.DeliveryID == "" || payload.DeliveryID != got.header.Get(HeaderDelivery) {
		t.Fatalf("delivery id mismatch: %q vs %q", payload.DeliveryID, got.header.Get(HeaderDelivery))
	}
	if payload.Attributes["liquidator"] != "keeper" || payload.Attributes["seized"] != "300000" {
		t.Fatalf("unexpected attributes %v", payload.Attributes)
	}
}

func TestDispatcherIgnoresOtherEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithHTTPClient(testClient()))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	dispatcher.Emit(events.LendingDeposit{LendingPosition: events.LendingPosition{User: "alice", Asset: "USDC", Amount: uint256.NewInt(1)}})
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestDispatcherRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithHTTPClient(testClient()),
		WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	dispatcher.Emit(liquidation())
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	dispatcher, err := NewDispatcher("http://127.0.0.1:1", []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	dispatcher.Close()
	if err := dispatcher.Enqueue(Payload{Type: events.TypeLendingLiquidation}); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("secret")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://example.com", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(10*time.Millisecond, 15*time.Millisecond); got != 15*time.Millisecond {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := nextBackoff(time.Millisecond, time.Second); got != 2*time.Millisecond {
		t.Fatalf("expected doubling, got %v", got)
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
