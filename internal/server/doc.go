// Package server implements the HTTP surface using the Echo framework.
//
// Routes: POST /notify (fan-out), POST /set (API key + reserved slot),
// GET /ws (websocket subscribe protocol), plus health and metrics endpoints.
package server
