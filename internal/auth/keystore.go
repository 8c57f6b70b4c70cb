// Package auth holds the per-account API key store.
package auth

import (
	"sync"

	"github.com/Absterrg0/AlertSockets/internal/logging"
	"github.com/Absterrg0/AlertSockets/internal/metrics"
)

// Keystore maps an account identifier to its current secret. At most one
// active secret per account: SetKey is last-write-wins, with no rotation
// history or expiry. State is process-local and dropped on restart.
type Keystore struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewKeystore() *Keystore {
	return &Keystore{keys: make(map[string]string)}
}

// SetKey overwrites any prior key for the account unconditionally.
func (k *Keystore) SetKey(droplertID, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[droplertID] = key
}

// VerifyKey reports whether a key is stored for the account and equals the
// presented one. Rejections are logged as security-relevant, including the
// no-key-stored case.
func (k *Keystore) VerifyKey(droplertID, key string) bool {
	k.mu.RLock()
	stored, exists := k.keys[droplertID]
	k.mu.RUnlock()

	if !exists || stored != key {
		metrics.AuthRejectionsTotal.Inc()
		logging.WithAccount(droplertID).Warn("API key verification failed", "key_stored", exists)
		return false
	}
	return true
}
