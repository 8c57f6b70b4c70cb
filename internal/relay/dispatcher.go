package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Absterrg0/AlertSockets/internal/domain"
	"github.com/Absterrg0/AlertSockets/internal/metrics"
)

// ErrNoSubscribers reports that a fan-out request found no registry entry at
// all for the account. The HTTP layer maps it to a 404.
var ErrNoSubscribers = errors.New("no connected websites found for user")

// Dispatcher fans a notification out to every live connection of the target
// account whose subscribed origin is in the request's website list.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch delivers the notification best-effort and returns the number of
// connections the frame was handed to. Delivery is not acknowledged
// end-to-end: once the account lookup succeeds the call succeeds, no matter
// how many connections were skipped or slow.
func (d *Dispatcher) Dispatch(req domain.NotificationRequest) (int, error) {
	targets := d.registry.ConnectionsFor(req.DroplertID)
	if len(targets) == 0 {
		metrics.NotificationsNoSubscribersTotal.Inc()
		return 0, ErrNoSubscribers
	}

	frame, err := json.Marshal(domain.NewPushFrame(req.Notification))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal notification frame: %w", err)
	}

	wanted := make(map[string]struct{}, len(req.Websites))
	for _, w := range req.Websites {
		wanted[w] = struct{}{}
	}

	delivered := 0
	for _, t := range targets {
		if t.Reserved {
			metrics.NotificationsFilteredTotal.WithLabelValues("reserved").Inc()
			continue
		}
		if _, ok := wanted[t.Origin]; !ok {
			metrics.NotificationsFilteredTotal.WithLabelValues("origin").Inc()
			continue
		}
		if !t.Client.Writable() {
			metrics.NotificationsFilteredTotal.WithLabelValues("closed").Inc()
			continue
		}

		if t.Client.Enqueue(frame) {
			delivered++
			metrics.NotificationsDeliveredTotal.Inc()
			continue
		}

		// Buffer full: the client cannot keep up, drop it. The caller still
		// gets success; delivery is best-effort.
		slog.Warn("Disconnecting slow client",
			"connection_id", t.Client.ID(),
			"droplert_id", req.DroplertID,
		)
		metrics.SlowClientsEvicted.Inc()
		d.registry.Unregister(t.Client)
	}

	metrics.NotificationsDispatchedTotal.Inc()
	slog.Debug("Notification dispatched",
		"droplert_id", req.DroplertID,
		"targets", len(targets),
		"delivered", delivered,
	)
	return delivered, nil
}
