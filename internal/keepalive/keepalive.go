// Package keepalive pings an external URL on a fixed period to keep the
// hosting platform from idling the process. It is fire-and-forget: failures
// are logged and counted but never reach the relay core.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/Absterrg0/AlertSockets/internal/metrics"
)

const (
	requestTimeout             = 10 * time.Second
	breakerConsecutiveFailures = 3
	breakerOpenDuration        = 5 * time.Minute
)

// Pinger issues a periodic GET to the configured URL. A circuit breaker stops
// the requests after repeated failures so a dead target is not hammered.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	clock    clockwork.Clock
	stopCh   chan struct{}
	done     chan struct{}
}

func NewPinger(url string, interval time.Duration, clock clockwork.Clock) *Pinger {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "keepalive",
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("Keepalive breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: requestTimeout},
		breaker:  breaker,
		clock:    clock,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ping loop. Call Stop to terminate it.
func (p *Pinger) Start() {
	go p.run()
}

// Stop terminates the ping loop and waits for it to exit.
func (p *Pinger) Stop() {
	close(p.stopCh)
	<-p.done
}

func (p *Pinger) run() {
	defer close(p.done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			p.pingOnce(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pinger) pingOnce(ctx context.Context) {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("keepalive target returned status %d", resp.StatusCode)
		}
		return nil, nil
	})

	if err != nil {
		metrics.KeepalivePingsTotal.WithLabelValues("failure").Inc()
		if err != gobreaker.ErrOpenState {
			slog.Warn("Keepalive ping failed", "url", p.url, "error", err)
		}
		return
	}
	metrics.KeepalivePingsTotal.WithLabelValues("success").Inc()
	slog.Debug("Keepalive ping sent", "url", p.url)
}
