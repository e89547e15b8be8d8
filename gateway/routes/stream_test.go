package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"nhooyr.io/websocket"

	"credo/core/events"
	"credo/gateway/middleware"
)

func depositEvent(user string, amount uint64) events.Event {
	return events.LendingDeposit{LendingPosition: events.LendingPosition{
		User:   user,
		Asset:  "USDC",
		Amount: uint256.NewInt(amount),
		Scaled: uint256.NewInt(amount),
	}}
}

func TestHubBacklogAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	hub.Emit(depositEvent("alice", 1))
	hub.Emit(depositEvent("bob", 2))

	ctx, cancel := context.WithCancel(context.Background())
	updates, stop, backlog := hub.Subscribe(ctx, "1")
	require.Len(t, backlog, 1)
	require.Equal(t, "bob", backlog[0].Attributes["user"])
	require.Equal(t, 1, hub.Subscribers())

	hub.Emit(depositEvent("carol", 3))
	update := <-updates
	require.Equal(t, uint64(3), update.Sequence)
	require.Equal(t, "3", update.Cursor)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-updates
	require.False(t, open)
	stop()
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	_, stop, _ := hub.Subscribe(context.Background(), "")
	defer stop()
	for i := 0; i < streamBuffer*2; i++ {
		hub.Emit(depositEvent("alice", uint64(i+1)))
	}
	require.Equal(t, 1, hub.Subscribers())
}

func TestStreamDeliversCommittedEvents(t *testing.T) {
	// The journal's connection pool is closed by t.Cleanup, after this check.
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	h := newHarness(t)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	h.do(http.MethodPost, "/v1/deposit", "lender", map[string]string{"asset": "USDC", "amount": "1000"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/stream?type=" + events.TypeLendingDeposit
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{middleware.DevUserHeader: []string{"watcher"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() StreamUpdate {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var update StreamUpdate
		require.NoError(t, json.Unmarshal(data, &update))
		return update
	}

	first := read()
	require.Equal(t, "lender", first.Attributes["user"])

	// The borrow is filtered out; only the second deposit arrives.
	h.do(http.MethodPost, "/v1/deposit", "borrower", map[string]string{"asset": "BTC", "amount": "2000000"})
	h.do(http.MethodPost, "/v1/borrow", "borrower", map[string]string{"asset": "USDC", "amount": "10"})
	h.do(http.MethodPost, "/v1/deposit", "lender", map[string]string{"asset": "USDC", "amount": "5"})

	second := read()
	require.Equal(t, "borrower", second.Attributes["user"])
	third := read()
	require.Equal(t, "5", third.Attributes["amount"])
	require.Greater(t, third.Sequence, second.Sequence)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
	require.Eventually(t, func() bool { return h.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
