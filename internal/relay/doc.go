// Package relay implements the subscription registry and fan-out core.
//
// The Registry is an actor: a single goroutine owns the account-to-connection
// mapping and processes commands from a channel (no mutexes). Per-connection
// write goroutines absorb slow clients. A periodic liveness sweep probes every
// registered connection with a websocket ping and evicts the ones that did
// not answer the previous probe.
package relay
