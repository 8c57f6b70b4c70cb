package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Absterrg0/AlertSockets/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 16
)

// clientWriter serializes all writes to one websocket connection onto a
// single goroutine. Data frames and ping control frames both go through it.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	pingChannel chan struct{}
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	writable    atomic.Bool
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		pingChannel: make(chan struct{}, 1),
		doneChannel: make(chan struct{}),
	}
	cw.writable.Store(true)
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()
	defer cw.writable.Store(false)

	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.pingChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.MonitorProbeFailures.Inc()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// trySend enqueues a data frame without blocking. Returns false when the
// writer is closed or its buffer is full.
func (cw *clientWriter) trySend(msg []byte) bool {
	if !cw.writable.Load() {
		return false
	}
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// tryPing enqueues a ping control frame without blocking. A pending ping
// satisfies the request, so a full ping channel still reports success.
func (cw *clientWriter) tryPing() bool {
	if !cw.writable.Load() {
		return false
	}
	select {
	case cw.pingChannel <- struct{}{}:
	default:
	}
	return true
}

func (cw *clientWriter) open() bool {
	return cw.writable.Load()
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		cw.writable.Store(false)
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a websocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		cw.writable.Store(false)

		// Signal the run goroutine to exit first, then wait for it. This
		// prevents concurrent writes to the websocket connection.
		close(cw.doneChannel)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}
