package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Absterrg0/AlertSockets/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// ReservedSlot is a bookkeeping-only placeholder created by POST /set. It
// reserves an account/origin pair without a transport, so it can never
// receive a push and is never probed by the liveness sweep.
type ReservedSlot struct {
	OriginURL string
}

// Target is one element of an account snapshot. Client is nil for reserved
// slots.
type Target struct {
	Client   *Client
	Origin   string
	Reserved bool
}

type accountEntry struct {
	clients  map[*Client]struct{}
	reserved []ReservedSlot
}

func (e *accountEntry) empty() bool {
	return len(e.clients) == 0 && len(e.reserved) == 0
}

// --- Command types ---

type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type subscribeCmd struct {
	baseRegistryCmd
	client       *Client
	accountID    string
	originURL    string
	errorChannel chan error
}

type unregisterCmd struct {
	baseRegistryCmd
	client *Client
}

type heartbeatCmd struct {
	baseRegistryCmd
	client *Client
}

type reserveCmd struct {
	baseRegistryCmd
	accountID string
	originURL string
}

type snapshotCmd struct {
	baseRegistryCmd
	accountID    string
	replyChannel chan []Target
}

type clientCountCmd struct {
	baseRegistryCmd
	accountID    string
	replyChannel chan int
}

type sweepCmd struct {
	baseRegistryCmd
	doneChannel chan struct{}
}

type stopCmd struct {
	baseRegistryCmd
}

// Registry owns the mapping from account identifier to the set of live
// connections (plus reserved slots). A single goroutine processes commands
// from a channel; every mutation and lookup goes through it, so register,
// unregister, and snapshot are atomic relative to each other.
type Registry struct {
	cmdCh                chan registryCmd
	clock                clockwork.Clock
	accounts             map[string]*accountEntry
	maxClientsPerAccount int
	sweepInterval        time.Duration
	done                 chan struct{}
	stopTimeout          time.Duration
}

// NewRegistry creates the registry and starts its actor goroutine, including
// the liveness sweep ticker.
func NewRegistry(clock clockwork.Clock, sweepInterval time.Duration, maxClientsPerAccount int) *Registry {
	r := &Registry{
		cmdCh:                make(chan registryCmd, 256),
		clock:                clock,
		accounts:             make(map[string]*accountEntry),
		maxClientsPerAccount: maxClientsPerAccount,
		sweepInterval:        sweepInterval,
		done:                 make(chan struct{}),
		stopTimeout:          stopTimeout,
	}
	go r.run()
	return r
}

// Subscribe tags the client with an account and origin and inserts it into
// that account's set. A client that is already subscribed is atomically moved:
// its previous registration is removed before the new one is created.
// Returns an error only when the target account is at its client cap.
func (r *Registry) Subscribe(client *Client, accountID, originURL string) error {
	errCh := make(chan error, 1)
	r.cmdCh <- subscribeCmd{client: client, accountID: accountID, originURL: originURL, errorChannel: errCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

// Unregister removes the client from its account's set and stops its writer.
// Safe to call twice; a second call is a no-op.
func (r *Registry) Unregister(client *Client) {
	r.cmdCh <- unregisterCmd{client: client}
}

// Heartbeat marks the client alive. Called from the connection's read loop on
// every pong control frame.
func (r *Registry) Heartbeat(client *Client) {
	r.cmdCh <- heartbeatCmd{client: client}
}

// Reserve records a placeholder entry for an account/origin pair.
func (r *Registry) Reserve(accountID, originURL string) {
	r.cmdCh <- reserveCmd{accountID: accountID, originURL: originURL}
}

// ConnectionsFor returns a point-in-time copy of the account's entries. The
// returned slice is safe to iterate while the registry keeps mutating. A nil
// result means the account has no entries.
func (r *Registry) ConnectionsFor(accountID string) []Target {
	replyCh := make(chan []Target, 1)
	r.cmdCh <- snapshotCmd{accountID: accountID, replyChannel: replyCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case targets := <-replyCh:
		return targets
	case <-timer.Chan():
		slog.Warn("ConnectionsFor timed out", "timeout", commandTimeout)
		return nil
	}
}

// ClientCount returns the number of live connections for an account.
// Returns -1 if the command times out.
func (r *Registry) ClientCount(accountID string) int {
	replyCh := make(chan int, 1)
	r.cmdCh <- clientCountCmd{accountID: accountID, replyChannel: replyCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the registry, closing all client connections. Blocks until
// the actor goroutine has exited or the stop timeout is reached.
func (r *Registry) Stop() {
	r.cmdCh <- stopCmd{}

	timeout := r.clock.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	select {
	case <-r.done:
		slog.Info("Registry stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Registry stop timeout exceeded, forcing exit", "timeout", r.stopTimeout)
		close(r.done)
	}
}

func (r *Registry) run() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Registry panic recovered", "panic", rec)
			r.closeAllClients("registry panic")
		}
	}()

	sweepTicker := r.clock.NewTicker(r.sweepInterval)
	defer sweepTicker.Stop()
	defer close(r.done)

	// Track command channel depth every second
	depthTicker := r.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(r.cmdCh)
			metrics.RegistryCommandChannelDepth.Set(float64(depth))
			if depth > 200 { // 80% of 256
				slog.Warn("Registry command channel near capacity", "depth", depth, "capacity", cap(r.cmdCh))
			}

		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case subscribeCmd:
				r.handleSubscribe(c)
			case unregisterCmd:
				r.handleUnregister(c)
			case heartbeatCmd:
				c.client.alive = true
			case reserveCmd:
				r.handleReserve(c)
			case snapshotCmd:
				c.replyChannel <- r.snapshot(c.accountID)
			case clientCountCmd:
				c.replyChannel <- r.clientCount(c.accountID)
			case sweepCmd:
				r.handleSweep()
				if c.doneChannel != nil {
					close(c.doneChannel)
				}
			case stopCmd:
				r.handleStop()
				return
			default:
				slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}

		case <-sweepTicker.Chan():
			r.handleSweep()
		}
	}
}

func (r *Registry) handleSubscribe(c subscribeCmd) {
	if entry, exists := r.accounts[c.accountID]; exists {
		if _, already := entry.clients[c.client]; !already && len(entry.clients) >= r.maxClientsPerAccount {
			slog.Warn("Rejecting subscription: max clients reached",
				"droplert_id", c.accountID,
				"max_clients", r.maxClientsPerAccount,
			)
			c.errorChannel <- fmt.Errorf("max clients per account (%d) reached", r.maxClientsPerAccount)
			return
		}
	}

	// A re-subscribe moves the connection: the old registration is dropped
	// before the new one is created, so the client never appears in two sets.
	if c.client.accountID != "" {
		r.removeClient(c.client)
	}

	c.client.accountID = c.accountID
	c.client.originURL = c.originURL
	c.client.alive = true

	entry := r.ensureEntry(c.accountID)
	entry.clients[c.client] = struct{}{}
	metrics.RegistryConnectedClients.Inc()

	slog.Debug("Client subscribed",
		"connection_id", c.client.ID(),
		"droplert_id", c.accountID,
		"website_url", c.originURL,
		"total_clients", len(entry.clients),
	)
	c.errorChannel <- nil
}

func (r *Registry) handleUnregister(c unregisterCmd) {
	c.client.writer.stop()

	if !r.removeClient(c.client) {
		return
	}

	slog.Debug("Client unregistered",
		"connection_id", c.client.ID(),
		"droplert_id", c.client.accountID,
	)
}

func (r *Registry) handleReserve(c reserveCmd) {
	entry := r.ensureEntry(c.accountID)
	for _, slot := range entry.reserved {
		if slot.OriginURL == c.originURL {
			return
		}
	}
	entry.reserved = append(entry.reserved, ReservedSlot{OriginURL: c.originURL})
	metrics.RegistryReservedSlots.Inc()
	slog.Info("Reserved slot created", "droplert_id", c.accountID, "website_url", c.originURL)
}

func (r *Registry) snapshot(accountID string) []Target {
	entry, exists := r.accounts[accountID]
	if !exists {
		return nil
	}

	targets := make([]Target, 0, len(entry.clients)+len(entry.reserved))
	for client := range entry.clients {
		targets = append(targets, Target{Client: client, Origin: client.originURL})
	}
	for _, slot := range entry.reserved {
		targets = append(targets, Target{Origin: slot.OriginURL, Reserved: true})
	}
	return targets
}

func (r *Registry) clientCount(accountID string) int {
	entry, exists := r.accounts[accountID]
	if !exists {
		return 0
	}
	return len(entry.clients)
}

func (r *Registry) ensureEntry(accountID string) *accountEntry {
	entry, exists := r.accounts[accountID]
	if !exists {
		entry = &accountEntry{clients: make(map[*Client]struct{})}
		r.accounts[accountID] = entry
		metrics.RegistryActiveAccounts.Set(float64(len(r.accounts)))
	}
	return entry
}

// removeClient drops the client from its tagged account's set, deleting the
// account entry when it becomes empty. Returns false if the client was never
// tagged or was already removed.
func (r *Registry) removeClient(client *Client) bool {
	if client.accountID == "" {
		return false
	}
	entry, exists := r.accounts[client.accountID]
	if !exists {
		return false
	}
	if _, exists := entry.clients[client]; !exists {
		return false
	}

	delete(entry.clients, client)
	metrics.RegistryConnectedClients.Dec()

	if entry.empty() {
		delete(r.accounts, client.accountID)
		metrics.RegistryActiveAccounts.Set(float64(len(r.accounts)))
		slog.Info("Last client disconnected", "droplert_id", client.accountID)
	}
	return true
}

func (r *Registry) handleStop() {
	totalClients := 0
	for _, entry := range r.accounts {
		totalClients += len(entry.clients)
	}

	slog.Info("Registry shutting down", "accounts", len(r.accounts), "total_clients", totalClients)
	r.closeAllClients("Server shutting down")
	slog.Info("Registry shutdown complete", "disconnected_clients", totalClients)
}

// closeAllClients closes every client connection with the given reason.
// Used during panic recovery and graceful shutdown.
func (r *Registry) closeAllClients(reason string) {
	for accountID, entry := range r.accounts {
		for client := range entry.clients {
			client.writer.stopGraceful(reason)
		}
		delete(r.accounts, accountID)
	}
	metrics.RegistryActiveAccounts.Set(0)
	metrics.RegistryConnectedClients.Set(0)
	metrics.RegistryReservedSlots.Set(0)
}
