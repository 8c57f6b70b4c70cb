package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Absterrg0/AlertSockets/internal/domain"
)

func testNotification() domain.Notification {
	return domain.Notification{
		Type:            domain.KindToast,
		Title:           "Hi",
		Message:         "Hello",
		BackgroundColor: "#fff",
		TextColor:       "#000",
		BorderColor:     "#000",
	}
}

func readPushFrame(t *testing.T, conn *ws.Conn) domain.PushFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame domain.PushFrame
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func assertNoFrame(t *testing.T, conn *ws.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	reg, _ := testRegistry(t, 50)
	d := NewDispatcher(reg)

	delivered, err := d.Dispatch(domain.NotificationRequest{
		DroplertID:   "nobody",
		Websites:     []string{"https://a.com"},
		Notification: testNotification(),
	})
	assert.ErrorIs(t, err, ErrNoSubscribers)
	assert.Zero(t, delivered)
}

func TestDispatcher_FiltersByOrigin(t *testing.T) {
	reg, dial := testRegistry(t, 50)
	d := NewDispatcher(reg)

	connA, _ := dial("acct1", "https://a.com")
	connB, _ := dial("acct1", "https://b.com")
	require.True(t, waitForClientCount(reg, "acct1", 2))

	delivered, err := d.Dispatch(domain.NotificationRequest{
		DroplertID:   "acct1",
		Websites:     []string{"https://a.com"},
		Notification: testNotification(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	frame := readPushFrame(t, connA)
	assert.Equal(t, "notification", frame.Type)
	assert.Equal(t, "Hi", frame.Data.Title)
	assert.Equal(t, "Hello", frame.Data.Message)

	// The b.com subscriber is in the same account but not in the target list.
	assertNoFrame(t, connB)
}

func TestDispatcher_MultipleTargetsSameOrigin(t *testing.T) {
	reg, dial := testRegistry(t, 50)
	d := NewDispatcher(reg)

	conn1, _ := dial("acct1", "https://a.com")
	conn2, _ := dial("acct1", "https://a.com")
	require.True(t, waitForClientCount(reg, "acct1", 2))

	delivered, err := d.Dispatch(domain.NotificationRequest{
		DroplertID:   "acct1",
		Websites:     []string{"https://a.com", "https://b.com"},
		Notification: testNotification(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	for _, conn := range []*ws.Conn{conn1, conn2} {
		frame := readPushFrame(t, conn)
		assert.Equal(t, "notification", frame.Type)
	}
}

func TestDispatcher_ReservedSlotNeverDeliverable(t *testing.T) {
	reg, _ := testRegistry(t, 50)
	d := NewDispatcher(reg)

	reg.Reserve("acct1", "https://a.com")
	require.Eventually(t, func() bool {
		return len(reg.ConnectionsFor("acct1")) == 1
	}, time.Second, time.Millisecond)

	// Lookup succeeds (the entry exists) but nothing has a transport.
	delivered, err := d.Dispatch(domain.NotificationRequest{
		DroplertID:   "acct1",
		Websites:     []string{"https://a.com"},
		Notification: testNotification(),
	})
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestDispatcher_ClosedTransportSkipped(t *testing.T) {
	// No read loop here: the registry entry must survive the transport close,
	// as happens between a peer disconnect and the next sweep.
	reg := NewRegistry(clockwork.NewRealClock(), time.Hour, 50)
	t.Cleanup(func() { reg.Stop() })
	d := NewDispatcher(reg)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	clientCh := make(chan *Client, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		client := NewClient(conn, clockwork.NewRealClock(), reg.Heartbeat)
		require.NoError(t, reg.Subscribe(client, "acct1", "https://a.com"))
		clientCh <- client
	}))
	t.Cleanup(server.Close)

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := <-clientCh
	require.True(t, waitForClientCount(reg, "acct1", 1))

	client.Close()
	require.Equal(t, 1, reg.ClientCount("acct1"))

	delivered, err := d.Dispatch(domain.NotificationRequest{
		DroplertID:   "acct1",
		Websites:     []string{"https://a.com"},
		Notification: testNotification(),
	})
	require.NoError(t, err)
	assert.Zero(t, delivered)
}
