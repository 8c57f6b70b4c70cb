package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRegistry sets up a Registry with a test HTTP server that upgrades
// connections to websockets. The sweep interval is long enough that sweeps
// only happen when a test triggers them explicitly. Returns the registry and
// a dial function; dial subscribes the connection when account is non-empty.
func testRegistry(t *testing.T, maxClients int) (*Registry, func(account, origin string) (*ws.Conn, *Client)) {
	t.Helper()

	reg := NewRegistry(clockwork.NewRealClock(), time.Hour, maxClients)
	t.Cleanup(func() { reg.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	clientCh := make(chan *Client, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		client := NewClient(conn, clockwork.NewRealClock(), reg.Heartbeat)
		if account := r.URL.Query().Get("account"); account != "" {
			require.NoError(t, reg.Subscribe(client, account, r.URL.Query().Get("origin")))
		}
		clientCh <- client

		// Read loop to detect disconnects and deliver pongs
		go func() {
			defer func() {
				reg.Unregister(client)
				client.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func(account, origin string) (*ws.Conn, *Client) {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?account=" + account + "&origin=" + origin
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		client := <-clientCh
		return conn, client
	}

	return reg, dial
}

// waitForClientCount polls until the registry has the expected count for an account.
func waitForClientCount(reg *Registry, account string, expected int) bool {
	for i := 0; i < 100; i++ {
		if reg.ClientCount(account) == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestRegistry_SubscribeTracksClients(t *testing.T) {
	reg, dial := testRegistry(t, 50)

	dial("acct1", "https://a.com")
	dial("acct1", "https://b.com")
	require.True(t, waitForClientCount(reg, "acct1", 2))

	targets := reg.ConnectionsFor("acct1")
	require.Len(t, targets, 2)

	origins := []string{targets[0].Origin, targets[1].Origin}
	assert.ElementsMatch(t, []string{"https://a.com", "https://b.com"}, origins)
}

func TestRegistry_EmptyAccountRemoved(t *testing.T) {
	reg, dial := testRegistry(t, 50)

	conns := make([]*ws.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		conn, _ := dial("acct1", "https://a.com")
		conns = append(conns, conn)
	}
	require.True(t, waitForClientCount(reg, "acct1", 3))

	for _, conn := range conns {
		conn.Close()
	}
	require.True(t, waitForClientCount(reg, "acct1", 0))

	// No dangling empty entry: the account is absent, not an empty set.
	assert.Nil(t, reg.ConnectionsFor("acct1"))
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	reg, dial := testRegistry(t, 50)

	_, client := dial("acct1", "https://a.com")
	require.True(t, waitForClientCount(reg, "acct1", 1))

	reg.Unregister(client)
	require.True(t, waitForClientCount(reg, "acct1", 0))

	// Second unregister must be a no-op, not a panic or a count underflow.
	reg.Unregister(client)
	assert.Equal(t, 0, reg.ClientCount("acct1"))
}

func TestRegistry_UnregisterUntaggedIsNoop(t *testing.T) {
	reg, dial := testRegistry(t, 50)

	_, client := dial("", "")
	reg.Unregister(client)
	assert.Equal(t, 0, reg.ClientCount("acct1"))
}

func TestRegistry_ResubscribeMovesConnection(t *testing.T) {
	reg, dial := testRegistry(t, 50)

	_, client := dial("acct1", "https://a.com")
	require.True(t, waitForClientCount(reg, "acct1", 1))

	// Re-subscribing under a new account must atomically drop the old
	// registration; no stale reference may linger in acct1's set.
	require.NoError(t, reg.Subscribe(client, "acct2", "https://b.com"))

	require.True(t, waitForClientCount(reg, "acct2", 1))
	assert.Equal(t, 0, reg.ClientCount("acct1"))
	assert.Nil(t, reg.ConnectionsFor("acct1"))

	targets := reg.ConnectionsFor("acct2")
	require.Len(t, targets, 1)
	assert.Equal(t, "https://b.com", targets[0].Origin)
}

func TestRegistry_MaxClientsPerAccount(t *testing.T) {
	reg, dial := testRegistry(t, 2)

	dial("acct1", "https://a.com")
	dial("acct1", "https://a.com")
	require.True(t, waitForClientCount(reg, "acct1", 2))

	_, third := dial("", "")
	err := reg.Subscribe(third, "acct1", "https://a.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max clients per account")
	assert.Equal(t, 2, reg.ClientCount("acct1"))
}

func TestRegistry_ReservedSlot(t *testing.T) {
	reg, _ := testRegistry(t, 50)

	reg.Reserve("acct1", "https://a.com")
	reg.Reserve("acct1", "https://a.com") // duplicate, no-op

	var targets []Target
	require.Eventually(t, func() bool {
		targets = reg.ConnectionsFor("acct1")
		return len(targets) == 1
	}, time.Second, time.Millisecond)

	assert.True(t, targets[0].Reserved)
	assert.Nil(t, targets[0].Client)
	assert.Equal(t, "https://a.com", targets[0].Origin)
	assert.Equal(t, 0, reg.ClientCount("acct1"))
}

func TestRegistry_StopClosesClients(t *testing.T) {
	reg := NewRegistry(clockwork.NewRealClock(), time.Hour, 50)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		client := NewClient(conn, clockwork.NewRealClock(), reg.Heartbeat)
		require.NoError(t, reg.Subscribe(client, "acct1", "https://a.com"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.True(t, waitForClientCount(reg, "acct1", 1))

	reg.Stop()

	// The client observes the close frame as a read error.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
