package relay

import (
	"log/slog"

	"github.com/Absterrg0/AlertSockets/internal/metrics"
)

// handleSweep is the liveness monitor. It runs inside the registry goroutine
// on a fixed period. Each cycle, a connection that never answered the
// previous probe is evicted; every surviving connection is marked dead and
// probed again, so the pong handler has one full period to flip it back.
// Detection therefore takes at most two cycles. Reserved slots have no
// transport and are left alone.
func (r *Registry) handleSweep() {
	evicted := 0

	for _, entry := range r.accounts {
		for client := range entry.clients {
			if !client.alive {
				client.writer.stop()
				r.removeClient(client)
				metrics.MonitorEvictionsTotal.Inc()
				evicted++
				slog.Info("Evicting unresponsive client",
					"connection_id", client.ID(),
					"droplert_id", client.accountID,
					"website_url", client.originURL,
				)
				continue
			}

			client.alive = false
			if !client.writer.tryPing() {
				// Writer already closed; the dead flag stands and the next
				// sweep removes it.
				metrics.MonitorProbeFailures.Inc()
			}
		}
	}

	metrics.MonitorSweepsTotal.Inc()
	if evicted > 0 {
		slog.Info("Liveness sweep complete", "evicted", evicted)
	}
}

// sweepNow runs one liveness sweep synchronously. Test helper.
func (r *Registry) sweepNow() {
	done := make(chan struct{})
	r.cmdCh <- sweepCmd{doneChannel: done}
	<-done
}
